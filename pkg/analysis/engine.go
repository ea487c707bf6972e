// Package analysis runs pattern detectors over a batch of query records
// and reduces their findings to one actionable explanation per root
// cause. The engine owns the shared scan cache, so warming up and
// detecting are separately timeable; both are idempotent per batch.
package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

// DefaultMaxConcurrentDetectors bounds parallel detector execution when
// the config does not say otherwise.
const DefaultMaxConcurrentDetectors = 4

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Detectors carries the detection thresholds.
	Detectors DetectorConfig

	// MaxConcurrent bounds how many detectors run at once. Non-positive
	// means DefaultMaxConcurrentDetectors.
	MaxConcurrent int

	// Disabled lists finding kinds whose detectors are skipped.
	Disabled []string
}

// SuggestionRenderer turns a finding kind plus a flat context map into
// remediation text. Rendering failures are logged and the finding is
// kept without a suggestion.
type SuggestionRenderer interface {
	Render(kind string, context map[string]string) (models.Suggestion, error)
}

// Engine analyzes query record batches. It is stateless between batches
// except for the scan cache, which only ever grows with distinct
// statement texts, so one engine can serve many batches.
type Engine struct {
	scanner    *sqlscan.Scanner
	classifier *Classifier
	detectors  []Detector
	pool       *WorkerPool[[]*models.Finding]
	renderer   SuggestionRenderer
	config     DetectorConfig
	logger     *zap.Logger
}

// NewEngine builds an engine with the registered detector set. renderer
// may be nil; findings then carry no suggestions.
func NewEngine(cfg EngineConfig, renderer SuggestionRenderer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentDetectors
	}

	return &Engine{
		scanner:    sqlscan.NewScanner(),
		classifier: NewClassifier(),
		detectors:  DefaultDetectors(cfg.Disabled...),
		pool:       NewWorkerPool[[]*models.Finding](cfg.MaxConcurrent),
		renderer:   renderer,
		config:     cfg.Detectors.withDefaults(),
		logger:     logger.Named("analysis"),
	}
}

// WarmUp primes the scan cache for a batch so that Run's own time
// excludes parsing. Calling it is optional; Run warms up regardless.
func (e *Engine) WarmUp(records []models.QueryRecord) {
	e.scanner.WarmUp(records)
}

// Run analyzes one batch and returns deduplicated findings sorted by
// severity. facts may be nil or empty; detectors then degrade to their
// heuristic rules. An empty batch yields no findings and no error.
func (e *Engine) Run(ctx context.Context, records []models.QueryRecord, facts *relations.Facts) ([]*models.Finding, error) {
	return e.RunDetectors(ctx, records, facts, e.detectors)
}

// RunDetectors is Run with an explicit detector set, for callers that
// assemble their own.
func (e *Engine) RunDetectors(ctx context.Context, records []models.QueryRecord, facts *relations.Facts, detectors []Detector) ([]*models.Finding, error) {
	if len(records) == 0 {
		return nil, nil
	}

	e.scanner.WarmUp(records)
	dc := &DetectContext{
		Records:    records,
		Groups:     buildGroups(records, e.scanner),
		Scanner:    e.scanner,
		Facts:      facts,
		Classifier: e.classifier,
		Config:     e.config,
	}

	items := make([]WorkItem[[]*models.Finding], len(detectors))
	for i, d := range detectors {
		items[i] = WorkItem[[]*models.Finding]{
			ID: d.Name(),
			Execute: func(ctx context.Context) ([]*models.Finding, error) {
				return safeDetect(ctx, d, dc)
			},
		}
	}
	results := e.pool.Process(ctx, items)

	// Partial batches are not meaningful: deduplication needs the full
	// finding stream, so a cancelled batch returns nothing.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}

	var findings []*models.Finding
	for _, res := range results {
		if res.Err != nil {
			e.logger.Warn("detector failed, continuing batch",
				zap.String("detector", res.ID),
				zap.Error(res.Err))
			continue
		}
		findings = append(findings, res.Value...)
	}

	findings = Deduplicate(findings, e.scanner)
	e.attachSuggestions(findings)

	e.logger.Debug("batch analyzed",
		zap.Int("records", len(records)),
		zap.Int("patterns", len(dc.Groups)),
		zap.Int("findings", len(findings)))
	return findings, nil
}

// ClearCaches drops the scan cache. Useful between unrelated workloads
// or in long-lived servers bounding memory.
func (e *Engine) ClearCaches() {
	e.scanner.Reset()
}

// CacheStats reports scan cache effectiveness.
func (e *Engine) CacheStats() sqlscan.CacheStats {
	return e.scanner.Stats()
}

// attachSuggestions renders remediation text per finding. Failures are
// logged and skipped; the finding stands on its own.
func (e *Engine) attachSuggestions(findings []*models.Finding) {
	if e.renderer == nil {
		return
	}
	for _, f := range findings {
		sug, err := e.renderer.Render(f.Kind, suggestionContext(f, e.scanner))
		if err != nil {
			e.logger.Warn("suggestion rendering failed",
				zap.String("kind", f.Kind),
				zap.Error(err))
			continue
		}
		f.Suggestion = &sug
	}
}

// suggestionContext flattens a finding into the key→value map the
// renderer consumes.
func suggestionContext(f *models.Finding, sc *sqlscan.Scanner) map[string]string {
	mc := map[string]string{
		"kind":     f.Kind,
		"severity": f.Severity.String(),
	}
	if entity := findingEntity(f, sc); entity != "" {
		mc["table"] = entity
	}
	if len(f.EvidenceQueries) > 0 {
		mc["statement"] = truncateSQL(f.EvidenceQueries[0].SQL, 200)
	}
	return mc
}

// safeDetect isolates detector panics so one broken detector cannot
// abort the batch.
func safeDetect(ctx context.Context, d Detector, dc *DetectContext) (findings []*models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Detect(ctx, dc)
}
