package lsp

import (
	"fmt"
	"strings"
	"time"

	"go.lsp.dev/protocol"
)

// DiagnosticSet is the latest diagnostics a server published for one file.
type DiagnosticSet struct {
	URI         protocol.DocumentURI
	FilePath    string
	Diagnostics []protocol.Diagnostic
	Timestamp   time.Time
}

// Summary buckets every cached diagnostic by severity. The four buckets
// always add up to Total.
type Summary struct {
	Total    int
	Errors   int
	Warnings int
	Info     int
	Hints    int
	Files    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d diagnostic(s) in %d file(s): %d error(s), %d warning(s), %d info, %d hint(s)",
		s.Total, s.Files, s.Errors, s.Warnings, s.Info, s.Hints)
}

// severityCounts is one file's entry in the severity index.
type severityCounts struct {
	errors, warnings, info, hints int
}

func (c *severityCounts) add(sev protocol.DiagnosticSeverity) {
	switch sev {
	case protocol.DiagnosticSeverityWarning:
		c.warnings++
	case protocol.DiagnosticSeverityInformation:
		c.info++
	case protocol.DiagnosticSeverityHint:
		c.hints++
	default:
		// Servers may omit severity; treat it as an error.
		c.errors++
	}
}

func countSeverities(diags []protocol.Diagnostic) severityCounts {
	var c severityCounts
	for _, d := range diags {
		c.add(d.Severity)
	}
	return c
}

// SeverityLabel names a severity, treating a missing one as an error.
func SeverityLabel(sev protocol.DiagnosticSeverity) string {
	switch sev {
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	default:
		return "error"
	}
}

// FormatDiagnostic renders d as "path:line:col: severity: message [source]"
// with one-based positions.
func FormatDiagnostic(path string, d protocol.Diagnostic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s: %s", path, d.Range.Start.Line+1, d.Range.Start.Character+1,
		SeverityLabel(d.Severity), strings.TrimSpace(d.Message))
	if d.Source != "" {
		fmt.Fprintf(&b, " [%s]", d.Source)
	}
	return b.String()
}
