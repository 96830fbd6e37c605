package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFinalNativeUnpacksResult(t *testing.T) {
	native := map[string]any{
		"final?": true,
		"answer": map[string]any{
			"result": "the answer",
			"type":   "string",
		},
	}
	result, ok := IsFinalNative(native)
	require.True(t, ok)
	require.Equal(t, "the answer", result)
}

func TestIsFinalNativeRejectsNonFinalValues(t *testing.T) {
	_, ok := IsFinalNative(map[string]any{"answer": "nope"})
	require.False(t, ok)

	_, ok = IsFinalNative("just a string")
	require.False(t, ok)

	_, ok = IsFinalNative(map[string]any{"final?": false, "answer": map[string]any{"result": 1}})
	require.False(t, ok)
}

func TestFinalFromStdoutFindsRecordAmongOtherLines(t *testing.T) {
	stdout := "loading documents\n" +
		`{"final?":true,"answer":{"result":42,"type":"int"}}` + "\n" +
		"done\n"
	result, ok := FinalFromStdout(stdout)
	require.True(t, ok)
	require.Equal(t, float64(42), result)
}

func TestFinalFromStdoutReportsFalseWhenAbsent(t *testing.T) {
	_, ok := FinalFromStdout("just some debug output\nnothing final here\n")
	require.False(t, ok)
}
