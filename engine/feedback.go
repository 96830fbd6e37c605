package engine

import (
	"fmt"
	"strconv"
	"strings"
)

const noCodeFeedback = `Your response did not contain any executable code. Respond with a
structured record containing "thinking" and a non-empty "code" array of
snippets to run against the sandbox.`

// isBareCallable reports whether result is one of sandbox.ToNative's
// string renderings of an unapplied Callable — "<builtin name>",
// "<tool name>", or "<fn>" — signaling the snippet named a function instead
// of invoking it.
func isBareCallable(result any) bool {
	s, ok := result.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, "<builtin ") || strings.HasPrefix(s, "<tool ") || s == "<fn>"
}

// buildFeedback implements spec.md §4.5 step 7: nudge the model when no code
// ran, otherwise echo each execution's code and outcome under <result_i>
// tags, with a targeted hint for a bare-callable result.
func buildFeedback(executions []Execution) string {
	if len(executions) == 0 {
		return noCodeFeedback
	}

	var b strings.Builder
	for i, ex := range executions {
		tag := "result_" + strconv.Itoa(i+1)
		fmt.Fprintf(&b, "<%s>\ncode:\n%s\n", tag, ex.Code)
		switch {
		case ex.TimedOut:
			b.WriteString("error: execution timed out\n")
		case ex.Error != "":
			fmt.Fprintf(&b, "error: %s\n", ex.Error)
		default:
			fmt.Fprintf(&b, "result: %v\n", ex.Result)
			if isBareCallable(ex.Result) {
				b.WriteString("hint: this result names a function without calling it — did you mean to invoke it with arguments?\n")
			}
		}
		if ex.Stdout != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", ex.Stdout)
		}
		fmt.Fprintf(&b, "</%s>\n", tag)
	}
	return strings.TrimRight(b.String(), "\n")
}
