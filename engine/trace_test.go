package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleTrace() *Trace {
	return &Trace{
		Iterations: []IterationRecord{
			{
				Iteration: 1,
				Thinking:  "let's look at the documents",
				Executions: []Execution{
					{ID: "1.1", Code: "(list-documents)", Result: "[]", Stdout: "scanning...\n", DurationMs: 12},
				},
				Timestamp: time.Now(),
			},
			{
				Iteration: 2,
				Thinking:  "done",
				Executions: []Execution{
					{ID: "2.1", Code: `(FINAL "ok")`, Result: map[string]any{"final?": true}, DurationMs: 3},
				},
				Final:     true,
				Timestamp: time.Now(),
			},
		},
	}
}

func TestPrettyPrintTraceIncludesBannersAndFinalMarker(t *testing.T) {
	out, err := PrettyPrintTrace(sampleTrace(), PrintOptions{})
	require.NoError(t, err)
	require.Contains(t, out, "iteration 1")
	require.Contains(t, out, "iteration 2")
	require.Contains(t, out, "(list-documents)")
	require.Contains(t, out, "*** final ***")
	require.NotContains(t, out, "scanning...")
}

func TestPrettyPrintTraceShowsStdoutWhenRequested(t *testing.T) {
	out, err := PrettyPrintTrace(sampleTrace(), PrintOptions{ShowStdout: true})
	require.NoError(t, err)
	require.Contains(t, out, "scanning...")
}

func TestPrettyPrintTraceTruncatesLongFields(t *testing.T) {
	trace := &Trace{Iterations: []IterationRecord{{
		Iteration: 1,
		Thinking:  strings.Repeat("x", 5000),
	}}}
	out, err := PrettyPrintTrace(trace, PrintOptions{MaxResponseLength: 10})
	require.NoError(t, err)
	idx := indexAfter(out, "thinking: ")
	require.LessOrEqual(t, len(out)-idx, 16)
}

func indexAfter(haystack, marker string) int {
	for i := 0; i+len(marker) <= len(haystack); i++ {
		if haystack[i:i+len(marker)] == marker {
			return i + len(marker)
		}
	}
	return -1
}
