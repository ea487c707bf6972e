package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// JSONReporter writes findings as one indented JSON array. An empty batch
// encodes as [] rather than null so consumers can always iterate.
type JSONReporter struct {
	out io.Writer
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{out: out}
}

func (r *JSONReporter) Report(findings []*models.Finding) error {
	if findings == nil {
		findings = []*models.Finding{}
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(findings); err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}
	return nil
}
