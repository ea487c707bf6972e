package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestConsoleReporter_NoFindings(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	if err := NewConsoleReporter(&buf).Report(nil); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(buf.String(), "No query pattern issues found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConsoleReporter_RendersFindingBlocks(t *testing.T) {
	disableColor(t)

	burst := models.NewFinding(models.KindRepeatedStatement, models.SeverityCritical,
		"Statement executed 40 times: orders",
		"Pattern ran 40 times with 40 distinct parameter sets.")
	burst.EvidenceQueries = []models.QueryRecord{{SQL: "SELECT * FROM orders WHERE customer_id = $1"}}
	burst.Trace = []models.StackFrame{{Function: "app.LoadOrders", File: "orders.go", Line: 17}}
	burst.Suggestion = &models.Suggestion{
		Code:        "SELECT * FROM orders WHERE customer_id = ANY(:ids)",
		Description: "Batch the per-row lookups into one statement.",
	}
	burst.Suppress(models.NewFinding(models.KindSelectStar, models.SeverityInfo, "SELECT * across joined tables", ""))

	scan := models.NewFinding(models.KindOrderedScanWithoutLimit, models.SeverityInfo,
		"ORDER BY without LIMIT", "")

	var buf bytes.Buffer
	if err := NewConsoleReporter(&buf).Report([]*models.Finding{burst, scan}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"[CRITICAL] Statement executed 40 times: orders",
		"Pattern ran 40 times",
		"evidence: SELECT * FROM orders WHERE customer_id = $1",
		"at app.LoadOrders (orders.go:17)",
		"fix: Batch the per-row lookups into one statement.",
		"SELECT * FROM orders WHERE customer_id = ANY(:ids)",
		"(1 overlapping finding(s) suppressed)",
		"[INFO] ORDER BY without LIMIT",
		"found 2 finding(s): 1 critical, 0 warning, 1 info.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestConsoleReporter_LongEvidenceIsTruncated(t *testing.T) {
	disableColor(t)

	f := models.NewFinding(models.KindUnboundedScan, models.SeverityWarning, "Unbounded statement", "")
	f.EvidenceQueries = []models.QueryRecord{{SQL: "SELECT " + strings.Repeat("col, ", 100) + "id FROM wide"}}

	var buf bytes.Buffer
	if err := NewConsoleReporter(&buf).Report([]*models.Finding{f}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(buf.String(), "...") {
		t.Error("long evidence SQL should be truncated")
	}
}
