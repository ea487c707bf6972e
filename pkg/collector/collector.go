// Package collector captures executed SQL statements as QueryRecords and
// moves batches between processes as JSON Lines. It feeds the analysis
// engine but knows nothing about it: a Recorder is a bounded,
// concurrency-safe sink that application code (or the pgx tracer) writes
// into during a unit of work and drains afterwards.
package collector

import (
	"sync"
	"time"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// DefaultTraceDepth bounds the number of application frames captured per
// statement when trace capture is enabled.
const DefaultTraceDepth = 8

// RecorderConfig controls what a Recorder captures.
type RecorderConfig struct {
	// MaxRecords caps the batch size. Zero means unbounded. Once the cap
	// is reached further statements are counted as dropped, not stored.
	MaxRecords int

	// CaptureTraces enables call-site capture for records that do not
	// already carry a trace.
	CaptureTraces bool

	// TraceDepth caps captured frames per statement.
	// Zero means DefaultTraceDepth.
	TraceDepth int
}

// Recorder is a concurrency-safe sink for executed statements. One Recorder
// holds one batch: the unit of work records into it, then Drain hands the
// batch to analysis and resets the sink for the next unit.
type Recorder struct {
	config RecorderConfig

	mu      sync.Mutex
	records []models.QueryRecord
	dropped int
}

// NewRecorder returns an empty Recorder.
func NewRecorder(config RecorderConfig) *Recorder {
	if config.TraceDepth <= 0 {
		config.TraceDepth = DefaultTraceDepth
	}
	return &Recorder{config: config}
}

// Record appends one record to the current batch. When trace capture is
// enabled and the record carries no trace, the caller's call site is
// captured. Records beyond MaxRecords are dropped and counted.
func (r *Recorder) Record(record models.QueryRecord) {
	if r.config.CaptureTraces && len(record.Trace) == 0 {
		record.Trace = captureTrace(2, r.config.TraceDepth)
	}
	r.append(record)
}

// RecordSQL assembles and records a QueryRecord from raw statement parts.
// rowCount < 0 means the count is unknown.
func (r *Recorder) RecordSQL(sql string, params map[string]any, elapsed time.Duration, rowCount int) {
	record := models.QueryRecord{
		SQL:             sql,
		Params:          params,
		ExecutionTimeMs: float64(elapsed) / float64(time.Millisecond),
	}
	if rowCount >= 0 {
		rows := rowCount
		record.RowCount = &rows
	}
	if r.config.CaptureTraces {
		record.Trace = captureTrace(2, r.config.TraceDepth)
	}
	r.append(record)
}

func (r *Recorder) append(record models.QueryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.config.MaxRecords > 0 && len(r.records) >= r.config.MaxRecords {
		r.dropped++
		return
	}
	r.records = append(r.records, record)
}

// Drain returns the captured batch and resets the Recorder for the next one.
func (r *Recorder) Drain() []models.QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.records
	r.records = nil
	r.dropped = 0
	return records
}

// Len reports how many records the current batch holds.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Dropped reports how many statements were discarded because the batch
// was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
