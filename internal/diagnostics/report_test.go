package diagnostics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/hir"
)

func TestSink_HasErrorsOnlyForErrorSeverity(t *testing.T) {
	s := NewSink()
	require.False(t, s.HasErrors())

	s.Warning(hir.Span{}, "just a warning")
	require.False(t, s.HasErrors())

	s.Error(hir.Span{}, "something wrong: %s", "bad value")
	require.True(t, s.HasErrors())
	require.Len(t, s.Reports(), 2)
}

func TestSink_ErrorFormatsMessageWithArgs(t *testing.T) {
	s := NewSink()
	s.Error(hir.Span{}, "node %d is not in discipline %s", 3, "electrical")

	reports := s.Reports()
	require.Len(t, reports, 1)
	require.Equal(t, "node 3 is not in discipline electrical", reports[0].Message)
	require.Equal(t, SeverityError, reports[0].Severity)
}

func TestSink_PushPreservesMultipleLabels(t *testing.T) {
	s := NewSink()
	s.Push(Report{
		Severity: SeverityWarning,
		Message:  "ambiguous merge",
		Labels: []Label{
			{Span: hir.Span{File: "a.va", Line: 1, Col: 1}, Message: "first definition"},
			{Span: hir.Span{File: "a.va", Line: 5, Col: 1}, Message: "second definition"},
		},
	})

	reports := s.Reports()
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Labels, 2)
	require.False(t, s.HasErrors())
}

func TestReporter_FormatIncludesSeverityMessageAndSpan(t *testing.T) {
	r := Report{
		Severity: SeverityError,
		Message:  "unsupported voltage contribution",
		Labels:   []Label{{Span: hir.Span{File: "vsrc.va", Line: 12, Col: 4}}},
	}

	out := Reporter{}.Format(r)
	require.True(t, strings.Contains(out, "unsupported voltage contribution"))
	require.True(t, strings.Contains(out, "vsrc.va:12:4"))
	require.True(t, strings.Contains(out, "error"))
}

func TestReporter_FormatUsesGeneratedSpanWhenFileEmpty(t *testing.T) {
	r := Report{
		Severity: SeverityNote,
		Message:  "folded during propagation",
		Labels:   []Label{{Span: hir.Span{}}},
	}

	out := Reporter{}.Format(r)
	require.True(t, strings.Contains(out, "<generated>"))
}

func TestReporter_FormatIncludesCodeWhenSet(t *testing.T) {
	r := Report{
		Severity: SeverityWarning,
		Message:  "deprecated syntax",
		Code:     "W0042",
	}

	out := Reporter{}.Format(r)
	require.True(t, strings.Contains(out, "W0042"))
}
