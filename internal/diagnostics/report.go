// Package diagnostics implements a structured diagnostic Report type, the
// sink that accumulates it per compilation job, and the pretty-printer that
// renders it for a human.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// Severity mirrors the structural/type/unsupported-feature taxonomy a
// mid-end diagnostic falls into.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "note"
	}
}

// Label attaches a short message to a specific span, the way "expected
// number, found string" attaches to the offending sub-expression rather
// than to the whole statement.
type Label struct {
	Span    hir.Span
	Message string
}

// Report is a single diagnostic: one message, a severity, and zero or more
// labeled spans providing context.
type Report struct {
	Severity Severity
	Message  string
	Labels   []Label
	Code     string // optional, e.g. "E0001"-style code for categorization.
}

// Sink accumulates Reports for a single compilation job. Mid-end passes
// never partially commit work: a pass checks Sink.HasErrors() after
// running and the caller discards any partial result if it is true.
type Sink struct {
	reports []Report
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Error(span hir.Span, format string, args ...any) {
	s.add(SeverityError, span, format, args...)
}

func (s *Sink) Warning(span hir.Span, format string, args ...any) {
	s.add(SeverityWarning, span, format, args...)
}

func (s *Sink) add(sev Severity, span hir.Span, format string, args ...any) {
	s.reports = append(s.reports, Report{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Labels:   []Label{{Span: span}},
	})
}

// Push records an already-constructed Report, for callers that need
// multiple labels.
func (s *Sink) Push(r Report) { s.reports = append(s.reports, r) }

// HasErrors reports whether any SeverityError report was recorded.
func (s *Sink) HasErrors() bool {
	for _, r := range s.reports {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (s *Sink) Reports() []Report { return s.reports }

// Reporter renders Reports for a human, following the same "rustc-like"
// layout kanso-lang-kanso's ErrorReporter uses: a colored header line, a
// `-->` location line, and a message.
type Reporter struct{}

func (Reporter) Format(r Report) string {
	var b strings.Builder

	levelColor := severityColor(r.Severity)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if r.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", levelColor(r.Severity.String()), r.Code, bold(r.Message))
	} else {
		fmt.Fprintf(&b, "%s: %s\n", levelColor(r.Severity.String()), bold(r.Message))
	}

	for _, l := range r.Labels {
		fmt.Fprintf(&b, "  %s %s", dim("-->"), l.Span.String())
		if l.Message != "" {
			fmt.Fprintf(&b, ": %s", l.Message)
		}
		b.WriteByte('\n')
	}

	return b.String()
}

func severityColor(s Severity) func(a ...any) string {
	switch s {
	case SeverityError:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case SeverityWarning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	}
}
