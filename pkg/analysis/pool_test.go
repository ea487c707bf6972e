package analysis

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_PreservesSubmissionOrder(t *testing.T) {
	pool := NewWorkerPool[int](4)

	items := make([]WorkItem[int], 8)
	for i := range items {
		items[i] = WorkItem[int]{
			ID: fmt.Sprintf("item-%d", i),
			Execute: func(context.Context) (int, error) {
				// Later items finish first; order must still hold.
				time.Sleep(time.Duration(len(items)-i) * time.Millisecond)
				return i * 10, nil
			},
		}
	}

	results := pool.Process(context.Background(), items)
	require.Len(t, results, len(items))
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("item-%d", i), res.ID)
		assert.Equal(t, i*10, res.Value)
		assert.NoError(t, res.Err)
	}
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int64
	pool := NewWorkerPool[struct{}](2)

	items := make([]WorkItem[struct{}], 6)
	for i := range items {
		items[i] = WorkItem[struct{}]{
			ID: fmt.Sprintf("item-%d", i),
			Execute: func(context.Context) (struct{}, error) {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return struct{}{}, nil
			},
		}
	}

	pool.Process(context.Background(), items)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestWorkerPool_CancellationReachesEveryItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool[int](1)

	blocker := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	items := []WorkItem[int]{
		{ID: "running", Execute: blocker},
		{ID: "queued", Execute: blocker},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := pool.Process(ctx, items)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled, res.ID)
	}
}

func TestNewWorkerPool_FlooredConcurrency(t *testing.T) {
	pool := NewWorkerPool[string](0)
	results := pool.Process(context.Background(), []WorkItem[string]{
		{ID: "only", Execute: func(context.Context) (string, error) { return "done", nil }},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].Value)
}
