package tool

import (
	"github.com/spf13/cast"

	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
)

// argAt returns the i'th argument, or sandbox.Nil if the call was made with
// fewer arguments than declared — core tools treat a missing trailing
// argument the same as an explicit nil. (fn closures do not: the evaluator
// rejects a closure call whose argument count differs from its parameters.)
func argAt(args []sandbox.Value, i int) sandbox.Value {
	if i < 0 || i >= len(args) {
		return sandbox.Nil
	}
	return args[i]
}

func argString(args []sandbox.Value, i int) (string, error) {
	return cast.ToStringE(sandbox.ToNative(argAt(args, i)))
}

// optMap reads a trailing options-record argument, e.g. the
// `{document-id?, type?, limit}` record search-* tools accept. Absent or
// non-map trailing arguments resolve to an empty map, so every option read
// degrades to its zero value.
func optMap(args []sandbox.Value, i int) map[string]sandbox.Value {
	v := argAt(args, i)
	if v.Kind != sandbox.KindMap {
		return nil
	}
	return v.Map
}

func optString(opts map[string]sandbox.Value, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := cast.ToStringE(sandbox.ToNative(v))
	return s
}

func optInt(opts map[string]sandbox.Value, key string, fallback int) int {
	v, ok := opts[key]
	if !ok {
		return fallback
	}
	n, err := cast.ToIntE(sandbox.ToNative(v))
	if err != nil {
		return fallback
	}
	return n
}

func optFloat(opts map[string]sandbox.Value, key string, fallback float64) float64 {
	v, ok := opts[key]
	if !ok {
		return fallback
	}
	f, err := cast.ToFloat64E(sandbox.ToNative(v))
	if err != nil {
		return fallback
	}
	return f
}

func optBool(opts map[string]sandbox.Value, key string) bool {
	v, ok := opts[key]
	if !ok {
		return false
	}
	b, _ := cast.ToBoolE(sandbox.ToNative(v))
	return b
}

func listFilterFromOpts(opts map[string]sandbox.Value) store.ListFilter {
	return store.ListFilter{
		DocumentID: optString(opts, "document-id"),
		Type:       optString(opts, "type"),
		Limit:      optInt(opts, "limit", 0),
	}
}

func strPtrOrEmpty(s string) sandbox.Value {
	if s == "" {
		return sandbox.Nil
	}
	return sandbox.Str(s)
}

func intPtr(p *int) sandbox.Value {
	if p == nil {
		return sandbox.Nil
	}
	return sandbox.Int(int64(*p))
}
