// Package sandbox implements the restricted expression evaluator described
// in spec.md §4.2: a small Lisp-like surface (def, function application,
// [...]/{...} literals) evaluated over three value shapes — Scalar,
// Collection, and Callable — with an explicit allow-list, a wall-clock
// timeout, captured stdout, and lazy-sequence realization before any value
// crosses back out to the caller.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	pkgstream "github.com/Tangerg/lynx/pkg/stream"
)

// Kind tags which of the three value shapes a Value holds. KindLazy is an
// implementation seam, not a fourth shape exposed to the LLM: every lazy
// value is forced into KindVector before it can leave the evaluator
// (spec.md §4.2 "lazy-sequence realization").
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindVector
	KindMap
	KindSet
	KindCallable
	KindLazy
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindCallable:
		return "callable"
	default:
		return "unknown"
	}
}

// CallableTag distinguishes the three flavors a Callable value may have.
type CallableTag int

const (
	CallableBuiltin CallableTag = iota
	CallableTool
	CallableClosure
)

// Callable is a tagged-variant callable value: either a Builtin identified
// by BuiltinID, a Tool identified by its registered name (§9 design note),
// or a Closure produced by the `fn` special form.
type Callable struct {
	Tag     CallableTag
	Builtin BuiltinID
	Tool    string

	Params []string
	Body   []Expr
	Env    *Scope
}

// Value is the universal runtime representation inside the evaluator. Scalar
// values populate Bool/Int/Float/Str directly; Collection values populate
// Vec/Map/Set; Callable values populate Call. Exactly one group is
// meaningful for a given Kind.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64
	Float float64
	Str   string

	Vec []Value
	Map map[string]Value
	Set map[string]Value // keyed by CanonicalKey for dedup; values preserved for realization

	Call Callable

	// Lazy backs KindLazy values: a pull-based element source built from
	// range/map/filter/take chains (pkg/stream.Reader). Realize drains it.
	Lazy pkgstream.Reader[Value]
}

// LazyVector wraps a stream.Reader as an unrealized KindLazy value.
func LazyVector(r pkgstream.Reader[Value]) Value {
	return Value{Kind: KindLazy, Lazy: r}
}

// Realize forces any lazily-produced collection into a concrete Vector,
// recursively forcing nested lazy elements. Non-lazy values pass through
// unchanged (and nested vector/map/set elements are forced too, matching
// "the returned value is recursively forced").
func Realize(ctx context.Context, v Value) (Value, error) {
	switch v.Kind {
	case KindLazy:
		var items []Value
		for {
			item, err := v.Lazy.Read(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return Value{}, err
			}
			forced, err := Realize(ctx, item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, forced)
		}
		return Value{Kind: KindVector, Vec: items}, nil
	case KindVector:
		out := make([]Value, len(v.Vec))
		for i, e := range v.Vec {
			f, err := Realize(ctx, e)
			if err != nil {
				return Value{}, err
			}
			out[i] = f
		}
		return Value{Kind: KindVector, Vec: out}, nil
	case KindMap:
		out := make(map[string]Value, len(v.Map))
		for k, e := range v.Map {
			f, err := Realize(ctx, e)
			if err != nil {
				return Value{}, err
			}
			out[k] = f
		}
		return Value{Kind: KindMap, Map: out}, nil
	case KindSet:
		out := make(map[string]Value, len(v.Set))
		for k, e := range v.Set {
			f, err := Realize(ctx, e)
			if err != nil {
				return Value{}, err
			}
			out[k] = f
		}
		return Value{Kind: KindSet, Set: out}, nil
	default:
		return v, nil
	}
}

// Nil is the canonical nil value.
var Nil = Value{Kind: KindNil}

func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value    { return Value{Kind: KindString, Str: s} }

func Vector(items ...Value) Value {
	return Value{Kind: KindVector, Vec: items}
}

func Map(m map[string]Value) Value {
	return Value{Kind: KindMap, Map: m}
}

func SetOf(items ...Value) Value {
	m := make(map[string]Value, len(items))
	for _, v := range items {
		m[CanonicalKey(v)] = v
	}
	return Value{Kind: KindSet, Set: m}
}

func BuiltinCallable(id BuiltinID) Value {
	return Value{Kind: KindCallable, Call: Callable{Tag: CallableBuiltin, Builtin: id}}
}

func ToolCallable(name string) Value {
	return Value{Kind: KindCallable, Call: Callable{Tag: CallableTool, Tool: name}}
}

// Truthy implements the evaluator's boolean-coercion rule: nil and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool
	default:
		return true
	}
}

// CanonicalKey renders a value into a stable string used for set membership
// and map-key comparisons. Collections nest their own canonical keys.
func CanonicalKey(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("b:%v", v.Bool)
	case KindInt:
		return fmt.Sprintf("i:%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case KindString:
		return "s:" + v.Str
	case KindVector:
		parts := make([]string, len(v.Vec))
		for i, e := range v.Vec {
			parts[i] = CanonicalKey(e)
		}
		return "v:[" + strings.Join(parts, ",") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + CanonicalKey(v.Map[k])
		}
		return "m:{" + strings.Join(parts, ",") + "}"
	case KindSet:
		keys := make([]string, 0, len(v.Set))
		for k := range v.Set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "set:{" + strings.Join(keys, ",") + "}"
	case KindCallable:
		switch v.Call.Tag {
		case CallableBuiltin:
			return fmt.Sprintf("call:builtin:%d", v.Call.Builtin)
		case CallableTool:
			return "call:tool:" + v.Call.Tool
		default:
			return fmt.Sprintf("call:closure:%p", v.Call.Env)
		}
	default:
		return "?"
	}
}

// Equal reports structural equality via canonical key comparison.
func Equal(a, b Value) bool {
	return CanonicalKey(a) == CanonicalKey(b)
}

// ToNative converts a Value into a plain Go any suitable for JSON encoding
// (engine traces, FINAL results, tool payloads). Sets become slices of their
// members' native values in no defined order.
func ToNative(v Value) any {
	switch v.Kind {
	case KindNil:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindVector:
		out := make([]any, len(v.Vec))
		for i, e := range v.Vec {
			out[i] = ToNative(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = ToNative(e)
		}
		return out
	case KindSet:
		out := make([]any, 0, len(v.Set))
		for _, e := range v.Set {
			out = append(out, ToNative(e))
		}
		return out
	case KindCallable:
		switch v.Call.Tag {
		case CallableBuiltin:
			return fmt.Sprintf("<builtin %s>", builtinNames[v.Call.Builtin])
		case CallableTool:
			return fmt.Sprintf("<tool %s>", v.Call.Tool)
		default:
			return "<fn>"
		}
	default:
		return nil
	}
}

// FromNative lifts a plain Go value (typically decoded JSON) into a Value.
// Used at the tool-call boundary where store/tool results cross back into
// the evaluator.
func FromNative(v any) Value {
	switch x := v.(type) {
	case nil:
		return Nil
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float64:
		return Float(x)
	case string:
		return Str(x)
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			items[i] = FromNative(e)
		}
		return Vector(items...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromNative(e)
		}
		return Map(m)
	default:
		return Str(fmt.Sprintf("%v", x))
	}
}
