package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

type traceContextKey struct{}

type traceQueryData struct {
	sql   string
	args  []any
	start time.Time
}

// Tracer feeds every statement executed through a pgx connection into a
// Recorder. Wire it into the pool config before connecting:
//
//	cfg.ConnConfig.Tracer = collector.NewTracer(recorder)
//
// The cost per statement is one context value and, when arguments are
// bound, one small map.
type Tracer struct {
	recorder *Recorder
}

// NewTracer returns a pgx QueryTracer that records into recorder.
func NewTracer(recorder *Recorder) *Tracer {
	return &Tracer{recorder: recorder}
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *Tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceQueryData{
		sql:   data.SQL,
		args:  data.Args,
		start: time.Now(),
	})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *Tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qd, ok := ctx.Value(traceContextKey{}).(traceQueryData)
	if !ok {
		return
	}

	record := models.QueryRecord{
		SQL:             qd.sql,
		Params:          positionalParams(qd.args),
		ExecutionTimeMs: float64(time.Since(qd.start)) / float64(time.Millisecond),
	}
	// A failed statement has no meaningful row count.
	if data.Err == nil {
		rows := int(data.CommandTag.RowsAffected())
		record.RowCount = &rows
	}
	if t.recorder.config.CaptureTraces {
		record.Trace = captureTrace(2, t.recorder.config.TraceDepth)
	}
	t.recorder.append(record)
}

// positionalParams maps pgx's positional arguments onto $1.. names so they
// line up with the placeholders in the statement text.
func positionalParams(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	params := make(map[string]any, len(args))
	for i, arg := range args {
		params[fmt.Sprintf("$%d", i+1)] = arg
	}
	return params
}
