package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PrintOptions configures PrettyPrintTrace's truncation and stdout
// visibility, per spec.md §6's pprint-trace options.
type PrintOptions struct {
	MaxResponseLength int
	MaxCodeLength     int
	MaxResultLength   int
	ShowStdout        bool
}

const defaultTruncateLength = 2000

func (o PrintOptions) withDefaults() PrintOptions {
	if o.MaxResponseLength <= 0 {
		o.MaxResponseLength = defaultTruncateLength
	}
	if o.MaxCodeLength <= 0 {
		o.MaxCodeLength = defaultTruncateLength
	}
	if o.MaxResultLength <= 0 {
		o.MaxResultLength = defaultTruncateLength
	}
	return o
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// PrettyPrintTrace renders t as a human-readable, banner-separated listing.
// It round-trips the trace through JSON via sjson/gjson (mirroring
// store.Store's snapshot codec) rather than walking the Go struct directly,
// so the same truncation/field-selection logic would work unchanged if
// Trace were instead loaded back from a persisted snapshot.
func PrettyPrintTrace(t *Trace, opts PrintOptions) (string, error) {
	opts = opts.withDefaults()

	raw, err := json.Marshal(t.Iterations)
	if err != nil {
		return "", fmt.Errorf("engine: marshal trace: %w", err)
	}
	doc, err := sjson.SetRawBytes([]byte(`{}`), "iterations", raw)
	if err != nil {
		return "", fmt.Errorf("engine: build trace document: %w", err)
	}

	var b strings.Builder
	iterations := gjson.GetBytes(doc, "iterations")
	iterations.ForEach(func(_, iter gjson.Result) bool {
		n := iter.Get("iteration").Int()
		fmt.Fprintf(&b, "========== iteration %d ==========\n", n)

		thinking := truncate(iter.Get("thinking").String(), opts.MaxResponseLength)
		if thinking != "" {
			fmt.Fprintf(&b, "thinking: %s\n", thinking)
		}

		execs := iter.Get("executions")
		execs.ForEach(func(_, ex gjson.Result) bool {
			fmt.Fprintf(&b, "--- execution %s ---\n", ex.Get("id").String())
			fmt.Fprintf(&b, "code:\n%s\n", truncate(ex.Get("code").String(), opts.MaxCodeLength))
			if errMsg := ex.Get("error").String(); errMsg != "" {
				fmt.Fprintf(&b, "error: %s\n", errMsg)
			} else {
				fmt.Fprintf(&b, "result: %s\n", truncate(ex.Get("result").Raw, opts.MaxResultLength))
			}
			if opts.ShowStdout {
				if stdout := ex.Get("stdout").String(); stdout != "" {
					fmt.Fprintf(&b, "stdout:\n%s\n", stdout)
				}
			}
			return true
		})

		if iter.Get("final").Bool() {
			b.WriteString("*** final ***\n")
		}
		return true
	})

	return b.String(), nil
}
