package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func TestJSONReporter_EmptyBatchIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONReporter(&buf).Report(nil); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestJSONReporter_RoundTrips(t *testing.T) {
	f := models.NewFinding(models.KindUnusedJoin, models.SeverityWarning,
		"Unused join: order_items", "The join is never referenced outside its ON clause.")
	f.EvidenceQueries = []models.QueryRecord{{SQL: "SELECT o.id FROM orders o JOIN order_items oi ON oi.order_id = o.id"}}

	var buf bytes.Buffer
	if err := NewJSONReporter(&buf).Report([]*models.Finding{f}); err != nil {
		t.Fatalf("Report: %v", err)
	}

	var back []models.Finding
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(back) != 1 {
		t.Fatalf("decoded %d findings, want 1", len(back))
	}
	if back[0].Kind != models.KindUnusedJoin || back[0].Severity != models.SeverityWarning {
		t.Errorf("decoded finding = %+v", back[0])
	}
	if back[0].Title != "Unused join: order_items" {
		t.Errorf("Title = %q", back[0].Title)
	}
	if len(back[0].EvidenceQueries) != 1 {
		t.Errorf("evidence lost in round trip: %v", back[0].EvidenceQueries)
	}
}
