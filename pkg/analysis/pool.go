package analysis

import (
	"context"
	"sync"
)

// WorkItem is a unit of work for the pool.
type WorkItem[T any] struct {
	// ID identifies the item in results and logs.
	ID string

	// Execute performs the work.
	Execute func(ctx context.Context) (T, error)
}

// WorkResult pairs an item's output with its ID.
type WorkResult[T any] struct {
	ID    string
	Value T
	Err   error
}

// WorkerPool runs items with bounded concurrency. Results are returned
// in submission order so downstream merging stays deterministic.
type WorkerPool[T any] struct {
	concurrency int
}

// NewWorkerPool creates a pool running at most concurrency items at
// once. Non-positive concurrency is treated as 1.
func NewWorkerPool[T any](concurrency int) *WorkerPool[T] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool[T]{concurrency: concurrency}
}

// Process runs all items and blocks until every one has finished or been
// cancelled. Items that never acquired a slot before cancellation carry
// the context error as their result.
func (p *WorkerPool[T]) Process(ctx context.Context, items []WorkItem[T]) []WorkResult[T] {
	results := make([]WorkResult[T], len(items))
	sem := make(chan struct{}, p.concurrency)

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int, item WorkItem[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			results[idx] = WorkResult[T]{ID: item.ID, Value: value, Err: err}
		}(i, items[i])
	}
	wg.Wait()

	return results
}
