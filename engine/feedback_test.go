package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFeedbackNudgesWhenNoCodeRan(t *testing.T) {
	out := buildFeedback(nil)
	require.Equal(t, noCodeFeedback, out)
}

func TestBuildFeedbackEmbedsCodeAndResultUnderTags(t *testing.T) {
	out := buildFeedback([]Execution{
		{ID: "1.1", Code: "(+ 1 2)", Result: int64(3)},
	})
	require.Contains(t, out, "<result_1>")
	require.Contains(t, out, "(+ 1 2)")
	require.Contains(t, out, "result: 3")
	require.Contains(t, out, "</result_1>")
}

func TestBuildFeedbackEmbedsErrorInsteadOfResult(t *testing.T) {
	out := buildFeedback([]Execution{
		{ID: "1.1", Code: "(mod 1 0)", Error: "sandbox: modulo by zero"},
	})
	require.Contains(t, out, "error: sandbox: modulo by zero")
	require.NotContains(t, out, "result:")
}

func TestBuildFeedbackHintsOnBareCallable(t *testing.T) {
	out := buildFeedback([]Execution{
		{ID: "1.1", Code: "stats", Result: "<tool stats>"},
	})
	require.Contains(t, out, "did you mean to invoke it")
}

func TestIsBareCallableRecognizesAllThreeForms(t *testing.T) {
	require.True(t, isBareCallable("<builtin +>"))
	require.True(t, isBareCallable("<tool FINAL>"))
	require.True(t, isBareCallable("<fn>"))
	require.False(t, isBareCallable("42"))
	require.False(t, isBareCallable(int64(42)))
}
