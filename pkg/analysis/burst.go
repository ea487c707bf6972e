package analysis

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func init() {
	Register(&burstDetector{})
}

// burstDetector flags statement patterns executed enough times in one
// batch to look like an N+1: the same statement re-issued once per
// element of some parent collection. It is a pure frequency signal and
// makes no join-shape assumptions.
type burstDetector struct{}

func (d *burstDetector) Name() string { return models.KindRepeatedStatement }

func (d *burstDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.Count < dc.Config.BurstThreshold {
			continue
		}

		title := fmt.Sprintf("Statement executed %d times", g.Count)
		entity := ""
		if main, ok := dc.Scanner.MainTable(g.Representative.SQL); ok {
			entity = main.Table
			title = fmt.Sprintf("Statement executed %d times: %s", g.Count, entity)
		}

		description := fmt.Sprintf(
			"The pattern %q ran %d times in one batch (%.1fms total).",
			truncateSQL(g.Canonical, 120), g.Count, g.TotalTimeMs,
		)
		if g.DistinctParams > 1 {
			description += fmt.Sprintf(
				" %d distinct parameter sets suggest a loop issuing one statement per element instead of one batched statement.",
				g.DistinctParams,
			)
		}

		f := models.NewFinding(models.KindRepeatedStatement, burstSeverity(g), title, description)
		f.AddEvidence(g.Hash, g.Representative)
		findings = append(findings, f)
	}
	return findings, nil
}

// burstSeverity scales with group size. A mid-band burst escalates to
// CRITICAL when parameters vary across the group, because varying
// bindings are the signature of a per-row loop rather than a retry.
func burstSeverity(g StatementGroup) models.Severity {
	switch {
	case g.Count > 100:
		return models.SeverityCritical
	case g.Count > 20:
		if g.DistinctParams > 1 {
			return models.SeverityCritical
		}
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
