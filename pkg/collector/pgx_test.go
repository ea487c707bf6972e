package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTracer_RecordsCompletedQuery(t *testing.T) {
	r := NewRecorder(RecorderConfig{})
	tracer := NewTracer(r)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL:  "SELECT * FROM orders WHERE customer_id = $1 AND region = $2",
		Args: []any{7, "EU"},
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("SELECT 3"),
	})

	batch := r.Drain()
	if len(batch) != 1 {
		t.Fatalf("recorded %d records, want 1", len(batch))
	}

	rec := batch[0]
	if rec.SQL != "SELECT * FROM orders WHERE customer_id = $1 AND region = $2" {
		t.Errorf("SQL = %q", rec.SQL)
	}
	if rec.Params["$1"] != 7 || rec.Params["$2"] != "EU" {
		t.Errorf("Params = %v", rec.Params)
	}
	if !rec.HasRowCount() || rec.Rows() != 3 {
		t.Errorf("row count = (%v, %d), want (true, 3)", rec.HasRowCount(), rec.Rows())
	}
	if rec.ExecutionTimeMs < 0 {
		t.Errorf("ExecutionTimeMs = %v", rec.ExecutionTimeMs)
	}
}

func TestTracer_FailedQueryHasNoRowCount(t *testing.T) {
	r := NewRecorder(RecorderConfig{})
	tracer := NewTracer(r)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "SELECT * FROM missing_table",
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		Err: errors.New(`relation "missing_table" does not exist`),
	})

	batch := r.Drain()
	if len(batch) != 1 {
		t.Fatalf("recorded %d records, want 1", len(batch))
	}
	if batch[0].HasRowCount() {
		t.Error("failed query should carry no row count")
	}
}

func TestTracer_EndWithoutStartIsIgnored(t *testing.T) {
	r := NewRecorder(RecorderConfig{})
	tracer := NewTracer(r)

	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("SELECT 1"),
	})

	if got := r.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
