package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

func init() {
	Register(&unusedJoinDetector{})
	Register(&overEagerJoinDetector{})
	Register(&unsafeLimitDetector{})
}

// unusedJoinDetector flags SELECT statements carrying joins whose alias
// is never referenced outside the join's own ON clause. Statements
// selecting * are skipped: the star implicitly consumes every joined
// table's columns.
type unusedJoinDetector struct{}

func (d *unusedJoinDetector) Name() string { return models.KindUnusedJoin }

func (d *unusedJoinDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasJoin || isSelectStar(g.Canonical) {
			continue
		}

		var unused []sqlscan.JoinDescriptor
		for _, j := range dc.Scanner.ExtractJoins(g.Representative.SQL) {
			// A join without an ON clause cannot be separated from its own
			// predicate, so usage cannot be assessed.
			if j.OnClause == "" {
				continue
			}
			if !dc.Scanner.AliasUsedElsewhere(g.Representative.SQL, j.Ref(), j.OnClause) {
				unused = append(unused, j)
			}
		}
		if len(unused) == 0 {
			continue
		}

		names := joinTableNames(unused)
		title := fmt.Sprintf("Unused join: %s", names)
		if len(unused) > 1 {
			title = fmt.Sprintf("%d unused joins: %s", len(unused), names)
		}
		description := fmt.Sprintf(
			"Joined tables are never referenced outside their ON clauses in pattern %q. The join still widens the row set and the execution plan without contributing columns or filters.",
			truncateSQL(g.Canonical, 120),
		)

		f := models.NewFinding(models.KindUnusedJoin, unusedJoinSeverity(len(unused)), title, description)
		f.AddEvidence(g.Hash, g.Representative)
		findings = append(findings, f)
	}
	return findings, nil
}

func unusedJoinSeverity(count int) models.Severity {
	switch {
	case count >= 3:
		return models.SeverityCritical
	case count >= 2:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// overEagerJoinDetector flags statements joining multiple row-multiplying
// associations at once. Loading two collections in one statement yields a
// cartesian blow-up proportional to the product of their sizes.
type overEagerJoinDetector struct{}

func (d *overEagerJoinDetector) Name() string { return models.KindOverEagerJoin }

func (d *overEagerJoinDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasJoin {
			continue
		}
		joins := dc.Scanner.ExtractJoins(g.Representative.SQL)

		var f *models.Finding
		if dc.Facts.Empty() {
			f = d.rawJoinFinding(g, joins)
		} else {
			f = d.collectionJoinFinding(dc, g, joins)
		}
		if f != nil {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// collectionJoinFinding counts collection-producing joins using relation
// facts. Two in one statement already multiply rows quadratically.
func (d *overEagerJoinDetector) collectionJoinFinding(dc *DetectContext, g StatementGroup, joins []sqlscan.JoinDescriptor) *models.Finding {
	main, _ := dc.Scanner.MainTable(g.Representative.SQL)

	var collection []sqlscan.JoinDescriptor
	for _, j := range joins {
		if dc.Classifier.IsCollectionJoin(j, main, dc.Facts) {
			collection = append(collection, j)
		}
	}
	if len(collection) < 2 {
		return nil
	}

	severity := models.SeverityWarning
	if len(collection) >= 3 {
		severity = models.SeverityCritical
	}
	title := fmt.Sprintf("%d collection joins in one statement: %s", len(collection), joinTableNames(collection))
	description := fmt.Sprintf(
		"Pattern %q joins %d row-multiplying associations at once. The result set grows with the product of the collection sizes; splitting into separate statements keeps each result proportional to one collection.",
		truncateSQL(g.Canonical, 120), len(collection),
	)

	f := models.NewFinding(models.KindOverEagerJoin, severity, title, description)
	f.AddEvidence(g.Hash, g.Representative)
	return f
}

// rawJoinFinding is the heuristic used when no relation facts are
// available: join count alone, with higher thresholds to compensate for
// not knowing which joins actually multiply rows.
func (d *overEagerJoinDetector) rawJoinFinding(g StatementGroup, joins []sqlscan.JoinDescriptor) *models.Finding {
	if len(joins) < 3 {
		return nil
	}

	severity := models.SeverityInfo
	switch {
	case len(joins) >= 5:
		severity = models.SeverityCritical
	case len(joins) >= 4:
		severity = models.SeverityWarning
	}
	title := fmt.Sprintf("%d joins in one statement: %s", len(joins), joinTableNames(joins))
	description := fmt.Sprintf(
		"Pattern %q carries %d joins. Without relation metadata their cardinality is unknown; if several multiply rows the result set grows multiplicatively.",
		truncateSQL(g.Canonical, 120), len(joins),
	)

	f := models.NewFinding(models.KindOverEagerJoin, severity, title, description)
	f.AddEvidence(g.Hash, g.Representative)
	return f
}

// unsafeLimitDetector flags the LIMIT-plus-collection-join combination.
// A row limit on a join that multiplies rows truncates parent entities
// mid-collection rather than limiting parents, so this is flagged
// unconditionally at CRITICAL.
type unsafeLimitDetector struct{}

func (d *unsafeLimitDetector) Name() string { return models.KindUnsafeLimitCollectionJoin }

func (d *unsafeLimitDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasLimit || !flags.HasJoin {
			continue
		}

		main, _ := dc.Scanner.MainTable(g.Representative.SQL)
		var collection []sqlscan.JoinDescriptor
		for _, j := range dc.Scanner.ExtractJoins(g.Representative.SQL) {
			if dc.Classifier.IsCollectionJoin(j, main, dc.Facts) {
				collection = append(collection, j)
			}
		}
		if len(collection) == 0 {
			continue
		}

		title := fmt.Sprintf("Row limit combined with collection join on %s", joinTableNames(collection))
		description := fmt.Sprintf(
			"Pattern %q applies a row limit to a join that can return several rows per parent. The limit counts joined rows, not parents, so a parent's collection can be cut off silently. Limit the parent set in a subquery or separate statement instead.",
			truncateSQL(g.Canonical, 120),
		)

		f := models.NewFinding(models.KindUnsafeLimitCollectionJoin, models.SeverityCritical, title, description)
		f.AddEvidence(g.Hash, g.Representative)
		findings = append(findings, f)
	}
	return findings, nil
}

// joinTableNames renders the joined table list for titles.
func joinTableNames(joins []sqlscan.JoinDescriptor) string {
	names := make([]string, len(joins))
	for i, j := range joins {
		names[i] = j.Table
	}
	return strings.Join(names, ", ")
}

// isSelectStar reports whether the canonical statement selects * (or
// DISTINCT *) as its first projection.
func isSelectStar(canonical string) bool {
	rest, ok := strings.CutPrefix(canonical, "SELECT ")
	if !ok {
		return false
	}
	rest = strings.TrimPrefix(rest, "DISTINCT ")
	return strings.HasPrefix(rest, "*")
}
