package analysis

import (
	"context"
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func init() {
	Register(&injectionDetector{})
}

// injectionDetector runs libinjection over parameter values. A parameter
// carrying SQL syntax means some caller concatenates user input into what
// should be an opaque binding, even when the statement itself is
// parameterized downstream.
//
// Only string values are checked; numbers and booleans cannot carry
// injection payloads.
type injectionDetector struct{}

func (d *injectionDetector) Name() string { return models.KindSuspiciousParameter }

func (d *injectionDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f := d.checkGroup(g); f != nil {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// checkGroup scans every record's parameters and folds all hits into one
// finding for the statement pattern.
func (d *injectionDetector) checkGroup(g StatementGroup) *models.Finding {
	type hit struct {
		record      models.QueryRecord
		param       string
		fingerprint string
	}
	var hits []hit

	for _, rec := range g.Records {
		for _, name := range sortedParamNames(rec.Params) {
			strValue, ok := rec.Params[name].(string)
			if !ok {
				continue
			}
			if isSQLi, fingerprint := libinjection.IsSQLi(strValue); isSQLi {
				hits = append(hits, hit{record: rec, param: name, fingerprint: string(fingerprint)})
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}

	first := hits[0]
	title := fmt.Sprintf("Suspicious value in parameter %q", first.param)
	description := fmt.Sprintf(
		"Parameter %q of pattern %q matched a SQL injection fingerprint (%s). The value carries SQL syntax, which means user input reaches the parameter unescaped.",
		first.param, truncateSQL(g.Canonical, 120), first.fingerprint,
	)
	if len(hits) > 1 {
		description += fmt.Sprintf(" %d parameter values across this pattern matched.", len(hits))
	}

	f := models.NewFinding(models.KindSuspiciousParameter, models.SeverityCritical, title, description)
	f.AddEvidence(g.Hash, first.record)
	return f
}

// sortedParamNames returns parameter names in stable order so repeated
// runs report the same parameter first.
func sortedParamNames(params map[string]any) []string {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
