package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

// Default thresholds applied when a DetectorConfig field is zero.
const (
	DefaultBurstThreshold      = 3
	DefaultDeepOffsetThreshold = 5000
	DefaultLargeResultRows     = 1000
)

// DetectorConfig tunes detector sensitivity. The zero value means
// "use defaults"; withDefaults fills the gaps.
type DetectorConfig struct {
	// BurstThreshold is the minimum number of executions of one statement
	// pattern that counts as a repetition burst.
	BurstThreshold int

	// DeepOffsetThreshold is the OFFSET value above which pagination is
	// flagged as deep.
	DeepOffsetThreshold int

	// LargeResultRows is the row count above which an unbounded statement
	// is considered to return a large result.
	LargeResultRows int
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = DefaultBurstThreshold
	}
	if c.DeepOffsetThreshold <= 0 {
		c.DeepOffsetThreshold = DefaultDeepOffsetThreshold
	}
	if c.LargeResultRows <= 0 {
		c.LargeResultRows = DefaultLargeResultRows
	}
	return c
}

// StatementGroup aggregates all records sharing one normalized statement
// pattern. Detectors that reason about repetition or per-pattern shape
// work from groups instead of rescanning raw records.
type StatementGroup struct {
	// Hash identifies the normalized pattern.
	Hash string

	// Canonical is the normalized statement text.
	Canonical string

	// Representative is the first record observed for the pattern.
	Representative models.QueryRecord

	// Records are all records in the group, in observation order.
	Records []models.QueryRecord

	// Count is len(Records).
	Count int

	// TotalTimeMs sums execution time across the group.
	TotalTimeMs float64

	// MaxRows is the largest reported row count, valid when HasRowCounts.
	MaxRows      int
	HasRowCounts bool

	// DistinctParams counts distinct parameter bindings seen across the
	// group. Zero when no record carried parameters.
	DistinctParams int
}

// DetectContext is the read-only input handed to every detector.
type DetectContext struct {
	// Records is the full observation window, in order.
	Records []models.QueryRecord

	// Groups holds one entry per normalized statement pattern, in first-
	// seen order.
	Groups []StatementGroup

	// Scanner serves cached structural lookups for any SQL text.
	Scanner *sqlscan.Scanner

	// Facts is the relation metadata; may be nil or empty.
	Facts *relations.Facts

	// Classifier resolves join cardinality against Facts.
	Classifier *Classifier

	// Config carries the effective thresholds.
	Config DetectorConfig
}

// Detector inspects one concern across the observation window and emits
// findings. Implementations must be safe for reuse across runs and must
// not retain the context past the call.
type Detector interface {
	// Name returns the stable finding kind the detector emits.
	Name() string

	// Detect returns findings in a deterministic order for a given input.
	Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error)
}

// buildGroups folds records into per-pattern statement groups, preserving
// first-seen order.
func buildGroups(records []models.QueryRecord, sc *sqlscan.Scanner) []StatementGroup {
	index := make(map[string]int, len(records))
	bindings := make(map[string]map[string]struct{})
	var groups []StatementGroup

	for _, rec := range records {
		norm := sc.Normalize(rec.SQL)
		gi, ok := index[norm.Hash]
		if !ok {
			gi = len(groups)
			index[norm.Hash] = gi
			groups = append(groups, StatementGroup{
				Hash:           norm.Hash,
				Canonical:      norm.Canonical,
				Representative: rec,
			})
			bindings[norm.Hash] = make(map[string]struct{})
		}

		g := &groups[gi]
		g.Records = append(g.Records, rec)
		g.Count++
		g.TotalTimeMs += rec.ExecutionTimeMs
		if rec.HasRowCount() {
			g.HasRowCounts = true
			if rec.Rows() > g.MaxRows {
				g.MaxRows = rec.Rows()
			}
		}
		if len(rec.Params) > 0 {
			bindings[norm.Hash][paramFingerprint(rec.Params)] = struct{}{}
		}
	}

	for i := range groups {
		groups[i].DistinctParams = len(bindings[groups[i].Hash])
	}
	return groups
}

// paramFingerprint renders a parameter map deterministically so distinct
// bindings can be counted with map semantics.
func paramFingerprint(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]byte, 0, 64)
	for _, k := range keys {
		out = append(out, k...)
		out = append(out, '=')
		out = fmt.Appendf(out, "%v", params[k])
		out = append(out, ';')
	}
	return string(out)
}

var (
	registryMu sync.RWMutex
	registry   []Detector
)

// Register adds a detector to the default set. Detectors self-register
// from init so the set tracks the compiled-in detector files.
func Register(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// DefaultDetectors returns the registered detectors in registration
// order, skipping any whose name appears in disabled.
func DefaultDetectors(disabled ...string) []Detector {
	skip := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		skip[name] = struct{}{}
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Detector, 0, len(registry))
	for _, d := range registry {
		if _, ok := skip[d.Name()]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

// truncateSQL shortens statement text for finding descriptions.
func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen] + "..."
}
