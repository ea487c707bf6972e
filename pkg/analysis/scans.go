package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func init() {
	Register(&selectStarDetector{})
	Register(&unboundedScanDetector{})
	Register(&orderedScanDetector{})
	Register(&deepOffsetDetector{})
}

// selectStarDetector flags SELECT * statements that join other tables.
// The star then pulls every column of every joined table across the
// wire; a bare single-table SELECT * is left alone.
type selectStarDetector struct{}

func (d *selectStarDetector) Name() string { return models.KindSelectStar }

func (d *selectStarDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasJoin || !isSelectStar(g.Canonical) {
			continue
		}

		joins := dc.Scanner.ExtractJoins(g.Representative.SQL)
		title := "SELECT * across joined tables"
		description := fmt.Sprintf(
			"Pattern %q selects every column of every table in a %d-join statement. Naming the needed columns shrinks the transfer and lets covering indexes apply.",
			truncateSQL(g.Canonical, 120), len(joins),
		)

		f := models.NewFinding(models.KindSelectStar, models.SeverityInfo, title, description)
		f.AddEvidence(g.Hash, g.Representative)
		findings = append(findings, f)
	}
	return findings, nil
}

// unboundedScanDetector flags SELECTs without a row limit that were
// observed returning large results. It needs row counts on the records;
// without that evidence it stays silent rather than guessing.
type unboundedScanDetector struct{}

func (d *unboundedScanDetector) Name() string { return models.KindUnboundedScan }

func (d *unboundedScanDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || flags.HasLimit {
			continue
		}
		if !g.HasRowCounts || g.MaxRows < dc.Config.LargeResultRows {
			continue
		}

		rec := maxRowsRecord(g)
		title := fmt.Sprintf("Unbounded statement returned %d rows", g.MaxRows)
		description := fmt.Sprintf(
			"Pattern %q has no row limit and was observed returning %d rows. Result size is bounded only by table growth; add a limit or paginate.",
			truncateSQL(g.Canonical, 120), g.MaxRows,
		)

		f := models.NewFinding(models.KindUnboundedScan, models.SeverityWarning, title, description)
		f.AddEvidence(g.Hash, rec)
		findings = append(findings, f)
	}
	return findings, nil
}

// orderedScanDetector flags ORDER BY without LIMIT. Sorting an unbounded
// result buffers and orders every row even when the caller reads a few.
// Severity needs corroboration: a large observed result makes it a
// WARNING, a join makes it an INFO, and a plain small ordered SELECT is
// left alone.
type orderedScanDetector struct{}

func (d *orderedScanDetector) Name() string { return models.KindOrderedScanWithoutLimit }

func (d *orderedScanDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasOrderBy || flags.HasLimit {
			continue
		}

		severity := models.Severity("")
		rec := g.Representative
		switch {
		case g.HasRowCounts && g.MaxRows >= dc.Config.LargeResultRows:
			severity = models.SeverityWarning
			rec = maxRowsRecord(g)
		case flags.HasJoin:
			severity = models.SeverityInfo
		default:
			continue
		}

		title := "ORDER BY without LIMIT"
		description := fmt.Sprintf(
			"Pattern %q sorts its full result with no row limit, so the database buffers and orders every matching row.",
			truncateSQL(g.Canonical, 120),
		)
		if severity == models.SeverityWarning {
			description += fmt.Sprintf(" Observed returning %d rows.", g.MaxRows)
		}

		f := models.NewFinding(models.KindOrderedScanWithoutLimit, severity, title, description)
		f.AddEvidence(g.Hash, rec)
		findings = append(findings, f)
	}
	return findings, nil
}

// offsetValuePattern reads a literal OFFSET from raw statement text. The
// canonical form replaces numbers with placeholders, so the value must
// come from the original text.
var offsetValuePattern = regexp.MustCompile(`(?i)\boffset\s+(\d+)`)

// deepOffsetDetector flags OFFSET pagination past the configured depth.
// The database still produces and discards every skipped row, so page
// cost grows linearly with page number.
type deepOffsetDetector struct{}

func (d *deepOffsetDetector) Name() string { return models.KindDeepOffsetPagination }

func (d *deepOffsetDetector) Detect(ctx context.Context, dc *DetectContext) ([]*models.Finding, error) {
	var findings []*models.Finding
	for _, g := range dc.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flags := dc.Scanner.QuickFlags(g.Representative.SQL)
		if !flags.IsSelect || !flags.HasOffset {
			continue
		}

		// Records sharing one pattern differ only in literals, so each can
		// carry a different offset; the deepest one observed decides.
		deepest, rec := 0, g.Representative
		for _, r := range g.Records {
			if m := offsetValuePattern.FindStringSubmatch(r.SQL); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil && v > deepest {
					deepest, rec = v, r
				}
			}
		}
		if deepest < dc.Config.DeepOffsetThreshold {
			continue
		}

		title := fmt.Sprintf("OFFSET pagination reached depth %d", deepest)
		description := fmt.Sprintf(
			"Pattern %q was observed skipping %d rows via OFFSET. Every skipped row is still produced and discarded; keyset pagination keeps page cost flat.",
			truncateSQL(g.Canonical, 120), deepest,
		)

		f := models.NewFinding(models.KindDeepOffsetPagination, models.SeverityWarning, title, description)
		f.AddEvidence(g.Hash, rec)
		findings = append(findings, f)
	}
	return findings, nil
}

// maxRowsRecord returns the group record with the largest reported row
// count, falling back to the representative.
func maxRowsRecord(g StatementGroup) models.QueryRecord {
	best, found := g.Representative, false
	for _, r := range g.Records {
		if !r.HasRowCount() {
			continue
		}
		if !found || r.Rows() > best.Rows() {
			best, found = r, true
		}
	}
	return best
}
