package collector

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ekaya-inc/querypatrol/pkg/jsonutil"
	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// maxLogLine bounds a single JSONL line. Statements longer than this are
// almost certainly generated SQL the producer should have truncated.
const maxLogLine = 4 * 1024 * 1024

// WriteLog writes records as JSON Lines, one record per line.
func WriteLog(w io.Writer, records []models.QueryRecord) error {
	enc := json.NewEncoder(w)
	for i, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

// logLine accepts the field spellings different query log producers use.
type logLine struct {
	SQL        json.RawMessage     `json:"sql"`
	Query      json.RawMessage     `json:"query"`
	Params     json.RawMessage     `json:"params"`
	TimeMs     json.RawMessage     `json:"execution_time_ms"`
	DurationMs json.RawMessage     `json:"duration_ms"`
	RowCount   json.RawMessage     `json:"row_count"`
	Trace      []models.StackFrame `json:"trace"`
}

// ReadLog parses JSON Lines into QueryRecords. Field shapes are deliberately
// loose: producers disagree on "sql" vs "query" and on numbers vs strings
// for timings, so values go through pkg/jsonutil's flexible decoding. Blank
// lines are skipped; a malformed line fails the whole read with its line
// number.
func ReadLog(r io.Reader) ([]models.QueryRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)

	var records []models.QueryRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw logLine
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("query log line %d: %w", lineNo, err)
		}

		sqlText := jsonutil.FlexibleStringValue(raw.SQL)
		if sqlText == "" {
			sqlText = jsonutil.FlexibleStringValue(raw.Query)
		}
		if sqlText == "" {
			return nil, fmt.Errorf("query log line %d: missing sql", lineNo)
		}

		params, err := jsonutil.FlexibleParams(raw.Params)
		if err != nil {
			return nil, fmt.Errorf("query log line %d: %w", lineNo, err)
		}

		record := models.QueryRecord{SQL: sqlText, Params: params, Trace: raw.Trace}
		if ms, ok := jsonutil.FlexibleFloat(raw.TimeMs); ok {
			record.ExecutionTimeMs = ms
		} else if ms, ok := jsonutil.FlexibleFloat(raw.DurationMs); ok {
			record.ExecutionTimeMs = ms
		}
		if rows, ok := jsonutil.FlexibleInt(raw.RowCount); ok {
			record.RowCount = &rows
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading query log: %w", err)
	}
	return records, nil
}

// ReadLogFile reads a JSONL query log from disk.
func ReadLogFile(path string) ([]models.QueryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query log: %w", err)
	}
	defer f.Close()
	return ReadLog(f)
}

// WriteLogFile writes records to path as a JSONL query log.
func WriteLogFile(path string, records []models.QueryRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating query log: %w", err)
	}
	if err := WriteLog(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
