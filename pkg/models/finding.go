package models

import (
	"github.com/google/uuid"
)

// Severity classifies how urgently a finding should be acted on.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Weight returns the numeric rank used for ordering and dedup tie-breaks.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// Finding kinds. These are stable identifiers: they appear in JSON output,
// suggestion lookups and detector disable lists, so renaming one is a
// breaking change.
const (
	KindRepeatedStatement         = "repeated_statement"
	KindUnusedJoin                = "unused_join"
	KindOverEagerJoin             = "over_eager_join"
	KindUnsafeLimitCollectionJoin = "unsafe_limit_collection_join"
	KindSelectStar                = "select_star"
	KindUnboundedScan             = "unbounded_scan"
	KindOrderedScanWithoutLimit   = "ordered_scan_without_limit"
	KindDeepOffsetPagination      = "deep_offset_pagination"
	KindSuspiciousParameter       = "suspicious_parameter"
)

// Suggestion is a remediation hint attached to a finding: a short code or
// query sample plus a prose explanation. Rendering is best effort; a finding
// without a suggestion is still valid.
type Suggestion struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Finding is one detected query pattern problem.
type Finding struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`

	// EvidenceQueries holds one representative record per distinct statement
	// pattern that contributed to the finding. AddEvidence maintains the
	// one-per-pattern invariant.
	EvidenceQueries []QueryRecord `json:"evidence_queries,omitempty"`

	// Trace is the call-site stack of the first evidence record that carried
	// one, so reports can point at application code.
	Trace []StackFrame `json:"trace,omitempty"`

	// Suppressed collects lower-priority findings that deduplication folded
	// into this one. Empty until deduplication runs.
	Suppressed []*Finding `json:"suppressed,omitempty"`

	// Suggestion is an optional remediation hint. Nil when rendering was
	// skipped or failed; suggestion failures never invalidate the finding.
	Suggestion *Suggestion `json:"suggestion,omitempty"`

	// evidenceHashes tracks the normalized hash of each attached evidence
	// record, in attach order.
	evidenceHashes []string
}

// NewFinding creates a finding with a fresh ID and no evidence.
func NewFinding(kind string, severity Severity, title, description string) *Finding {
	return &Finding{
		ID:          uuid.New(),
		Kind:        kind,
		Severity:    severity,
		Title:       title,
		Description: description,
	}
}

// AddEvidence attaches rec as evidence unless a record with the same
// normalized hash is already attached. The first occurrence of a pattern
// wins and attach order is preserved. Returns true when the record was
// added.
func (f *Finding) AddEvidence(hash string, rec QueryRecord) bool {
	for _, h := range f.evidenceHashes {
		if h == hash {
			return false
		}
	}
	f.evidenceHashes = append(f.evidenceHashes, hash)
	f.EvidenceQueries = append(f.EvidenceQueries, rec)
	if len(f.Trace) == 0 && len(rec.Trace) > 0 {
		f.Trace = rec.Trace
	}
	return true
}

// Suppress folds other into f as a deduplicated lower-priority finding.
func (f *Finding) Suppress(other *Finding) {
	f.Suppressed = append(f.Suppressed, other)
}
