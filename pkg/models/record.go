package models

// QueryRecord is a single executed SQL statement together with the execution
// metadata a collector captured for it. Records are treated as immutable once
// handed to the analysis engine; their lifetime is one analysis batch.
type QueryRecord struct {
	// SQL is the statement text exactly as executed, placeholders included.
	SQL string `json:"sql"`

	// Params maps placeholder names (or positions, e.g. "$1") to bound values.
	// May be nil when the collector did not capture bindings.
	Params map[string]any `json:"params,omitempty"`

	// ExecutionTimeMs is the wall-clock execution time in milliseconds.
	ExecutionTimeMs float64 `json:"execution_time_ms"`

	// RowCount is the number of rows returned or affected.
	// Nil means the count was unavailable (e.g. streaming reads).
	RowCount *int `json:"row_count,omitempty"`

	// Trace is the application call-site stack, innermost frame first.
	// Empty when trace capture was disabled.
	Trace []StackFrame `json:"trace,omitempty"`
}

// StackFrame identifies one application call site that issued a statement.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// NormalizedSQL is the canonical form of a statement with literals and
// placeholders stripped, plus the hash that identifies the pattern.
// Two statements with the same Hash are the same pattern regardless of
// bound values.
type NormalizedSQL struct {
	Canonical string `json:"canonical"`
	Hash      string `json:"hash"`
}

// Rows returns the record's row count, or 0 when it was not captured.
func (r QueryRecord) Rows() int {
	if r.RowCount == nil {
		return 0
	}
	return *r.RowCount
}

// HasRowCount reports whether the collector captured a row count.
func (r QueryRecord) HasRowCount() bool {
	return r.RowCount != nil
}
