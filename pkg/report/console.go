// Package report renders analysis findings for consumption outside the
// engine: colored console blocks for humans, a JSON array for tooling.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// Reporter writes a deduplicated finding stream to some destination.
type Reporter interface {
	Report(findings []*models.Finding) error
}

// ConsoleReporter renders one block per finding, colored by severity, with
// evidence statements, the application call site and the remediation hint
// when one is attached.
type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

func (r *ConsoleReporter) Report(findings []*models.Finding) error {
	if len(findings) == 0 {
		fmt.Fprintln(r.out, color.GreenString("✔ No query pattern issues found."))
		return nil
	}

	for _, f := range findings {
		fmt.Fprintf(r.out, "[%s] %s\n", severityColor(f.Severity).Sprint(f.Severity), f.Title)
		if f.Description != "" {
			fmt.Fprintf(r.out, "    %s\n", f.Description)
		}
		for _, ev := range f.EvidenceQueries {
			fmt.Fprintf(r.out, "    evidence: %s\n", color.CyanString(truncate(ev.SQL, 120)))
		}
		if len(f.Trace) > 0 {
			frame := f.Trace[0]
			fmt.Fprintf(r.out, "    at %s (%s:%d)\n", frame.Function, frame.File, frame.Line)
		}
		if f.Suggestion != nil {
			fmt.Fprintf(r.out, "    fix: %s\n", f.Suggestion.Description)
			for _, line := range strings.Split(strings.TrimRight(f.Suggestion.Code, "\n"), "\n") {
				fmt.Fprintf(r.out, "        %s\n", color.CyanString(line))
			}
		}
		if n := len(f.Suppressed); n > 0 {
			fmt.Fprintf(r.out, "    (%d overlapping finding(s) suppressed)\n", n)
		}
		fmt.Fprintln(r.out)
	}

	critical, warning, info := countBySeverity(findings)
	mark := color.RedString("✘")
	if critical == 0 {
		mark = color.YellowString("!")
	}
	fmt.Fprintf(r.out, "%s found %d finding(s): %d critical, %d warning, %d info.\n",
		mark, len(findings), critical, warning, info)
	return nil
}

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityWarning:
		return color.New(color.FgYellow, color.Bold)
	case models.SeverityInfo:
		return color.New(color.FgBlue, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func countBySeverity(findings []*models.Finding) (critical, warning, info int) {
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warning++
		case models.SeverityInfo:
			info++
		}
	}
	return critical, warning, info
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
