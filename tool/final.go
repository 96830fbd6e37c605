package tool

import (
	"strings"

	"github.com/tidwall/gjson"
)

// IsFinalNative performs the same check as IsFinal but against the plain Go
// value sandbox.Executor.Execute returns in Result.Value (already converted
// via sandbox.ToNative), for the iteration engine's result-path termination
// check — Result.Value is never a sandbox.Value by the time it reaches the
// engine.
func IsFinalNative(v any) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	tag, ok := m["final?"]
	if !ok {
		return nil, false
	}
	if b, ok := tag.(bool); !ok || !b {
		return nil, false
	}
	answer, ok := m["answer"].(map[string]any)
	if !ok {
		return nil, false
	}
	result, ok := answer["result"]
	if !ok {
		return nil, false
	}
	return result, true
}

// FinalFromStdout scans an execution's stdout for a FINAL record printed via
// `print`/`println` rather than returned, the second of §4.5's two detection
// paths. stdout may hold unrelated printed lines alongside the record, so
// each non-blank line is tried independently before giving up.
func FinalFromStdout(stdout string) (any, bool) {
	if gjson.Valid(stdout) {
		if result, ok := finalFromJSON(stdout); ok {
			return result, true
		}
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !gjson.Valid(line) {
			continue
		}
		if result, ok := finalFromJSON(line); ok {
			return result, true
		}
	}
	return nil, false
}

func finalFromJSON(s string) (any, bool) {
	parsed := gjson.Parse(s)
	if !parsed.Get("final?").Bool() {
		return nil, false
	}
	result := parsed.Get("answer.result")
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
