package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	pkgstream "github.com/Tangerg/lynx/pkg/stream"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

func (e *Evaluator) applyBuiltin(id BuiltinID, args []Value) (Value, error) {
	switch id {
	case BAdd:
		return numFold(args, 0, func(a, b float64) float64 { return a + b })
	case BSub:
		if len(args) == 1 {
			return numFold(args, 0, func(a, b float64) float64 { return a - b })
		}
		return numReduce(args, func(a, b float64) float64 { return a - b })
	case BMul:
		return numFold(args, 1, func(a, b float64) float64 { return a * b })
	case BDiv:
		return numReduce(args, func(a, b float64) float64 { return a / b })
	case BMod:
		if len(args) != 2 {
			return Nil, fmt.Errorf("sandbox: mod expects 2 args")
		}
		a, err := cast.ToInt64E(scalarNative(args[0]))
		if err != nil {
			return Nil, err
		}
		b, err := cast.ToInt64E(scalarNative(args[1]))
		if err != nil {
			return Nil, err
		}
		if b == 0 {
			return Nil, fmt.Errorf("sandbox: modulo by zero")
		}
		return Int(a % b), nil

	case BEq:
		return Bool(allEqual(args, true)), nil
	case BNeq:
		return Bool(!allEqual(args, true)), nil
	case BLt:
		return numCompareChain(args, func(a, b float64) bool { return a < b })
	case BLte:
		return numCompareChain(args, func(a, b float64) bool { return a <= b })
	case BGt:
		return numCompareChain(args, func(a, b float64) bool { return a > b })
	case BGte:
		return numCompareChain(args, func(a, b float64) bool { return a >= b })

	case BAnd:
		for _, a := range args {
			if !a.Truthy() {
				return a, nil
			}
		}
		if len(args) == 0 {
			return Bool(true), nil
		}
		return args[len(args)-1], nil
	case BOr:
		for _, a := range args {
			if a.Truthy() {
				return a, nil
			}
		}
		return Bool(false), nil
	case BNot:
		if len(args) != 1 {
			return Nil, fmt.Errorf("sandbox: not expects 1 arg")
		}
		return Bool(!args[0].Truthy()), nil

	case BVector:
		return Vector(args...), nil
	case BMap:
		if len(args)%2 != 0 {
			return Nil, fmt.Errorf("sandbox: hash-map expects an even number of args")
		}
		m := make(map[string]Value, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			m[cast.ToString(scalarNative(args[i]))] = args[i+1]
		}
		return Map(m), nil
	case BSet:
		return SetOf(args...), nil

	case BGet:
		return builtinGet(args)
	case BAssoc:
		return builtinAssoc(args)
	case BCount:
		return builtinCount(args)
	case BFirst:
		return builtinFirst(args)
	case BRest:
		return builtinRest(args)
	case BConj:
		return builtinConj(args)

	case BRange:
		return builtinRange(args)
	case BMapSeq:
		return e.builtinMapSeq(args)
	case BFilter:
		return e.builtinFilter(args)
	case BReduce:
		return e.builtinReduce(args)
	case BTake:
		return builtinTake(args)
	case BSort:
		return builtinSort(args)
	case BReverse:
		return builtinReverse(args)
	case BConcat:
		return builtinConcat(args)

	case BStrJoin:
		return builtinStrJoin(args)
	case BStrSplit:
		return builtinStrSplit(args)
	case BStrUpper:
		return withString(args, strings.ToUpper)
	case BStrLower:
		return withString(args, strings.ToLower)
	case BStrContains:
		return builtinStrContains(args)
	case BStrReplace:
		return builtinStrReplace(args)
	case BStrTrim:
		return withString(args, strings.TrimSpace)

	case BRegexMatch:
		return builtinRegexMatch(args)
	case BRegexFind:
		return builtinRegexFind(args)

	case BDateParse:
		return builtinDateParse(args)
	case BDateCompare:
		return builtinDateCompare(args)
	case BDateAddDays:
		return builtinDateAddDays(args)

	case BUnion:
		return builtinSetOp(args, func(a, b map[string]Value) map[string]Value {
			return lo.Assign(a, b)
		})
	case BIntersection:
		return builtinSetOp(args, setIntersection)
	case BDifference:
		return builtinSetOp(args, setDifference)

	case BPrint:
		e.builtinPrint(args, false)
		return Nil, nil
	case BPrintln:
		e.builtinPrint(args, true)
		return Nil, nil

	default:
		return Nil, fmt.Errorf("sandbox: unimplemented builtin %q", builtinNames[id])
	}
}

// builtinPrint writes the space-joined display form of args to the
// evaluator's stdout buffer, used by the engine's stdout-path FINAL
// detection as well as plain debugging output from sandboxed code.
func (e *Evaluator) builtinPrint(args []Value, newline bool) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = displayString(a)
	}
	e.stdout.WriteString(strings.Join(parts, " "))
	if newline {
		e.stdout.WriteByte('\n')
	}
}

// displayString renders a Value the way print/println show it: strings
// unquoted, scalars in their natural form, collections as JSON.
func displayString(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindString:
		return v.Str
	case KindBool, KindInt, KindFloat:
		return cast.ToString(scalarNative(v))
	default:
		b, err := json.Marshal(ToNative(v))
		if err != nil {
			return fmt.Sprintf("%v", ToNative(v))
		}
		return string(b)
	}
}

func scalarNative(v Value) any { return ToNative(v) }

func toFloat(v Value) (float64, error) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), nil
	case KindFloat:
		return v.Float, nil
	default:
		return cast.ToFloat64E(scalarNative(v))
	}
}

func isIntOnly(args []Value) bool {
	for _, a := range args {
		if a.Kind == KindFloat {
			return false
		}
	}
	return true
}

func numFold(args []Value, seed float64, op func(a, b float64) float64) (Value, error) {
	acc := seed
	for _, a := range args {
		f, err := toFloat(a)
		if err != nil {
			return Nil, err
		}
		acc = op(acc, f)
	}
	if isIntOnly(args) {
		return Int(int64(acc)), nil
	}
	return Float(acc), nil
}

func numReduce(args []Value, op func(a, b float64) float64) (Value, error) {
	if len(args) == 0 {
		return Nil, fmt.Errorf("sandbox: arithmetic op expects at least 1 arg")
	}
	acc, err := toFloat(args[0])
	if err != nil {
		return Nil, err
	}
	for _, a := range args[1:] {
		f, err := toFloat(a)
		if err != nil {
			return Nil, err
		}
		acc = op(acc, f)
	}
	if isIntOnly(args) {
		return Int(int64(acc)), nil
	}
	return Float(acc), nil
}

func numCompareChain(args []Value, cmp func(a, b float64) bool) (Value, error) {
	for i := 0; i+1 < len(args); i++ {
		a, err := toFloat(args[i])
		if err != nil {
			return Nil, err
		}
		b, err := toFloat(args[i+1])
		if err != nil {
			return Nil, err
		}
		if !cmp(a, b) {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func allEqual(args []Value, _ bool) bool {
	for i := 1; i < len(args); i++ {
		if !Equal(args[0], args[i]) {
			return false
		}
	}
	return true
}

func builtinGet(args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Nil, fmt.Errorf("sandbox: get expects (get coll key [default])")
	}
	def := Nil
	if len(args) == 3 {
		def = args[2]
	}
	switch args[0].Kind {
	case KindMap:
		if v, ok := args[0].Map[cast.ToString(scalarNative(args[1]))]; ok {
			return v, nil
		}
		return def, nil
	case KindVector:
		idx, err := cast.ToIntE(scalarNative(args[1]))
		if err != nil {
			return Nil, err
		}
		if idx < 0 || idx >= len(args[0].Vec) {
			return def, nil
		}
		return args[0].Vec[idx], nil
	case KindSet:
		key := CanonicalKey(args[1])
		if v, ok := args[0].Set[key]; ok {
			return v, nil
		}
		return def, nil
	default:
		return def, nil
	}
}

func builtinAssoc(args []Value) (Value, error) {
	if len(args) < 3 || len(args)%2 != 1 {
		return Nil, fmt.Errorf("sandbox: assoc expects (assoc coll key val ...)")
	}
	switch args[0].Kind {
	case KindMap:
		out := make(map[string]Value, len(args[0].Map))
		for k, v := range args[0].Map {
			out[k] = v
		}
		for i := 1; i < len(args); i += 2 {
			out[cast.ToString(scalarNative(args[i]))] = args[i+1]
		}
		return Map(out), nil
	case KindVector:
		out := append([]Value(nil), args[0].Vec...)
		for i := 1; i < len(args); i += 2 {
			idx, err := cast.ToIntE(scalarNative(args[i]))
			if err != nil {
				return Nil, err
			}
			if idx < 0 || idx >= len(out) {
				return Nil, fmt.Errorf("sandbox: assoc index %d out of range", idx)
			}
			out[idx] = args[i+1]
		}
		return Vector(out...), nil
	default:
		return Nil, fmt.Errorf("sandbox: assoc expects a map or vector")
	}
}

func builtinCount(args []Value) (Value, error) {
	if len(args) != 1 {
		return Nil, fmt.Errorf("sandbox: count expects 1 arg")
	}
	switch args[0].Kind {
	case KindVector:
		return Int(int64(len(args[0].Vec))), nil
	case KindMap:
		return Int(int64(len(args[0].Map))), nil
	case KindSet:
		return Int(int64(len(args[0].Set))), nil
	case KindString:
		return Int(int64(len(args[0].Str))), nil
	case KindNil:
		return Int(0), nil
	default:
		return Nil, fmt.Errorf("sandbox: count does not support %s", args[0].Kind)
	}
}

func builtinFirst(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: first expects a vector")
	}
	if len(args[0].Vec) == 0 {
		return Nil, nil
	}
	return args[0].Vec[0], nil
}

func builtinRest(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: rest expects a vector")
	}
	if len(args[0].Vec) <= 1 {
		return Vector(), nil
	}
	return Vector(args[0].Vec[1:]...), nil
}

func builtinConj(args []Value) (Value, error) {
	if len(args) < 1 {
		return Nil, fmt.Errorf("sandbox: conj expects at least 1 arg")
	}
	switch args[0].Kind {
	case KindVector:
		return Vector(append(append([]Value(nil), args[0].Vec...), args[1:]...)...), nil
	case KindSet:
		m := make(map[string]Value, len(args[0].Set)+len(args)-1)
		for k, v := range args[0].Set {
			m[k] = v
		}
		for _, a := range args[1:] {
			m[CanonicalKey(a)] = a
		}
		return Value{Kind: KindSet, Set: m}, nil
	default:
		return Nil, fmt.Errorf("sandbox: conj does not support %s", args[0].Kind)
	}
}

func builtinRange(args []Value) (Value, error) {
	var start, end, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		e, err := cast.ToInt64E(scalarNative(args[0]))
		if err != nil {
			return Nil, err
		}
		end = e
	case 2:
		s, err := cast.ToInt64E(scalarNative(args[0]))
		if err != nil {
			return Nil, err
		}
		e, err := cast.ToInt64E(scalarNative(args[1]))
		if err != nil {
			return Nil, err
		}
		start, end = s, e
	case 3:
		s, err := cast.ToInt64E(scalarNative(args[0]))
		if err != nil {
			return Nil, err
		}
		e, err := cast.ToInt64E(scalarNative(args[1]))
		if err != nil {
			return Nil, err
		}
		st, err := cast.ToInt64E(scalarNative(args[2]))
		if err != nil {
			return Nil, err
		}
		if st == 0 {
			return Nil, fmt.Errorf("sandbox: range step must not be 0")
		}
		start, end, step = s, e, st
	default:
		return Nil, fmt.Errorf("sandbox: range expects 1-3 args")
	}

	var items []Value
	if step > 0 {
		for i := start; i < end; i += step {
			items = append(items, Int(i))
		}
	} else {
		for i := start; i > end; i += step {
			items = append(items, Int(i))
		}
	}
	return LazyVector(pkgstream.OfSliceReader(items)), nil
}

func asVectorReader(v Value) (pkgstream.Reader[Value], error) {
	switch v.Kind {
	case KindLazy:
		return v.Lazy, nil
	case KindVector:
		return pkgstream.OfSliceReader(v.Vec), nil
	case KindSet:
		items := make([]Value, 0, len(v.Set))
		for _, e := range v.Set {
			items = append(items, e)
		}
		return pkgstream.OfSliceReader(items), nil
	default:
		return nil, fmt.Errorf("sandbox: expected a sequence, got %s", v.Kind)
	}
}

// builtinMapSeq applies a closure/tool/builtin to each element lazily.
func (e *Evaluator) builtinMapSeq(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindCallable {
		return Nil, fmt.Errorf("sandbox: map expects (map fn coll)")
	}
	reader, err := asVectorReader(args[1])
	if err != nil {
		return Nil, err
	}
	fn := args[0]
	mapped := pkgstream.Map(reader, func(v Value) Value {
		out, err := e.applyValue(context.Background(), fn, []Value{v})
		if err != nil {
			return Nil
		}
		return out
	})
	return LazyVector(mapped), nil
}

func (e *Evaluator) builtinFilter(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindCallable {
		return Nil, fmt.Errorf("sandbox: filter expects (filter pred coll)")
	}
	reader, err := asVectorReader(args[1])
	if err != nil {
		return Nil, err
	}
	pred := args[0]
	filtered := pkgstream.Filter(reader, func(v Value) bool {
		out, err := e.applyValue(context.Background(), pred, []Value{v})
		if err != nil {
			return false
		}
		return out.Truthy()
	})
	return LazyVector(filtered), nil
}

func (e *Evaluator) builtinReduce(args []Value) (Value, error) {
	if (len(args) != 2 && len(args) != 3) || args[0].Kind != KindCallable {
		return Nil, fmt.Errorf("sandbox: reduce expects (reduce fn [init] coll)")
	}
	realized, err := Realize(context.Background(), args[len(args)-1])
	if err != nil {
		return Nil, err
	}
	if realized.Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: reduce's last argument must be a sequence")
	}
	items := realized.Vec
	var acc Value
	if len(args) == 3 {
		acc = args[1]
	} else if len(items) == 0 {
		return e.applyValue(context.Background(), args[0], nil)
	} else {
		acc, items = items[0], items[1:]
	}
	for _, v := range items {
		out, err := e.applyValue(context.Background(), args[0], []Value{acc, v})
		if err != nil {
			return Nil, err
		}
		acc = out
	}
	return acc, nil
}

// applyValue applies a Callable value without going through evalCall's
// expression-level head resolution (used by the higher-order builtins).
func (e *Evaluator) applyValue(ctx context.Context, fn Value, args []Value) (Value, error) {
	if e.cancelled() {
		return Nil, ErrTimedOut
	}
	switch fn.Call.Tag {
	case CallableBuiltin:
		if !e.allow.Allowed(fn.Call.Builtin) {
			return Nil, fmt.Errorf("%w: builtin %q", ErrNotAllowed, builtinNames[fn.Call.Builtin])
		}
		return e.applyBuiltin(fn.Call.Builtin, args)
	case CallableTool:
		if e.invoker == nil {
			return Nil, fmt.Errorf("sandbox: no tool invoker configured for %q", fn.Call.Tool)
		}
		return e.invoker.Invoke(ctx, fn.Call.Tool, args)
	case CallableClosure:
		return e.applyClosure(ctx, fn.Call, args)
	default:
		return Nil, fmt.Errorf("sandbox: unknown callable tag")
	}
}

func builtinTake(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: take expects (take n coll)")
	}
	n, err := cast.ToIntE(scalarNative(args[0]))
	if err != nil {
		return Nil, err
	}
	realized, err := Realize(context.Background(), args[1])
	if err != nil {
		return Nil, err
	}
	if realized.Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: take's second argument must be a sequence")
	}
	if n > len(realized.Vec) {
		n = len(realized.Vec)
	}
	if n < 0 {
		n = 0
	}
	return Vector(realized.Vec[:n]...), nil
}

func builtinSort(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: sort expects a vector")
	}
	out := append([]Value(nil), args[0].Vec...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, erri := toFloat(out[i])
		fj, errj := toFloat(out[j])
		if erri == nil && errj == nil {
			return fi < fj
		}
		return cast.ToString(scalarNative(out[i])) < cast.ToString(scalarNative(out[j]))
	})
	return Vector(out...), nil
}

func builtinReverse(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: reverse expects a vector")
	}
	out := make([]Value, len(args[0].Vec))
	for i, v := range args[0].Vec {
		out[len(out)-1-i] = v
	}
	return Vector(out...), nil
}

func builtinConcat(args []Value) (Value, error) {
	var out []Value
	for _, a := range args {
		realized, err := Realize(context.Background(), a)
		if err != nil {
			return Nil, err
		}
		if realized.Kind != KindVector {
			return Nil, fmt.Errorf("sandbox: concat expects sequences")
		}
		out = append(out, realized.Vec...)
	}
	return Vector(out...), nil
}

func builtinStrJoin(args []Value) (Value, error) {
	if len(args) != 2 || args[1].Kind != KindVector {
		return Nil, fmt.Errorf("sandbox: str-join expects (str-join sep coll)")
	}
	sep := cast.ToString(scalarNative(args[0]))
	parts := lo.Map(args[1].Vec, func(v Value, _ int) string { return cast.ToString(scalarNative(v)) })
	return Str(strings.Join(parts, sep)), nil
}

func builtinStrSplit(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: str-split expects (str-split s sep)")
	}
	s := cast.ToString(scalarNative(args[0]))
	sep := cast.ToString(scalarNative(args[1]))
	parts := strings.Split(s, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Str(p)
	}
	return Vector(items...), nil
}

func withString(args []Value, f func(string) string) (Value, error) {
	if len(args) != 1 {
		return Nil, fmt.Errorf("sandbox: expects 1 string arg")
	}
	return Str(f(cast.ToString(scalarNative(args[0])))), nil
}

func builtinStrContains(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: str-contains? expects (str-contains? s substr)")
	}
	return Bool(strings.Contains(cast.ToString(scalarNative(args[0])), cast.ToString(scalarNative(args[1])))), nil
}

func builtinStrReplace(args []Value) (Value, error) {
	if len(args) != 3 {
		return Nil, fmt.Errorf("sandbox: str-replace expects (str-replace s old new)")
	}
	s := cast.ToString(scalarNative(args[0]))
	old := cast.ToString(scalarNative(args[1]))
	n := cast.ToString(scalarNative(args[2]))
	return Str(strings.ReplaceAll(s, old, n)), nil
}

func builtinRegexMatch(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: re-match? expects (re-match? pattern s)")
	}
	re, err := regexp.Compile(cast.ToString(scalarNative(args[0])))
	if err != nil {
		return Nil, fmt.Errorf("sandbox: invalid regex: %w", err)
	}
	return Bool(re.MatchString(cast.ToString(scalarNative(args[1])))), nil
}

func builtinRegexFind(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: re-find expects (re-find pattern s)")
	}
	re, err := regexp.Compile(cast.ToString(scalarNative(args[0])))
	if err != nil {
		return Nil, fmt.Errorf("sandbox: invalid regex: %w", err)
	}
	matches := re.FindAllString(cast.ToString(scalarNative(args[1])), -1)
	items := make([]Value, len(matches))
	for i, m := range matches {
		items[i] = Str(m)
	}
	return Vector(items...), nil
}

func builtinDateParse(args []Value) (Value, error) {
	if len(args) != 1 {
		return Nil, fmt.Errorf("sandbox: date-parse expects (date-parse iso8601-string)")
	}
	t, err := time.Parse(time.RFC3339, cast.ToString(scalarNative(args[0])))
	if err != nil {
		t, err = time.Parse("2006-01-02", cast.ToString(scalarNative(args[0])))
		if err != nil {
			return Nil, fmt.Errorf("sandbox: invalid ISO-8601 date: %w", err)
		}
	}
	return Int(t.Unix()), nil
}

func builtinDateCompare(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: date-compare expects two date-parse results")
	}
	a, err := cast.ToInt64E(scalarNative(args[0]))
	if err != nil {
		return Nil, err
	}
	b, err := cast.ToInt64E(scalarNative(args[1]))
	if err != nil {
		return Nil, err
	}
	switch {
	case a < b:
		return Int(-1), nil
	case a > b:
		return Int(1), nil
	default:
		return Int(0), nil
	}
}

func builtinDateAddDays(args []Value) (Value, error) {
	if len(args) != 2 {
		return Nil, fmt.Errorf("sandbox: date-add-days expects (date-add-days ts days)")
	}
	ts, err := cast.ToInt64E(scalarNative(args[0]))
	if err != nil {
		return Nil, err
	}
	days, err := cast.ToInt64E(scalarNative(args[1]))
	if err != nil {
		return Nil, err
	}
	return Int(time.Unix(ts, 0).UTC().AddDate(0, 0, int(days)).Unix()), nil
}

func setMembers(v Value) (map[string]Value, error) {
	switch v.Kind {
	case KindSet:
		return v.Set, nil
	case KindVector:
		m := make(map[string]Value, len(v.Vec))
		for _, e := range v.Vec {
			m[CanonicalKey(e)] = e
		}
		return m, nil
	default:
		return nil, fmt.Errorf("sandbox: expected a set or vector, got %s", v.Kind)
	}
}

func setIntersection(a, b map[string]Value) map[string]Value {
	out := make(map[string]Value)
	for k, v := range a {
		if _, ok := b[k]; ok {
			out[k] = v
		}
	}
	return out
}

func setDifference(a, b map[string]Value) map[string]Value {
	out := make(map[string]Value)
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func builtinSetOp(args []Value, op func(a, b map[string]Value) map[string]Value) (Value, error) {
	if len(args) < 2 {
		return Nil, fmt.Errorf("sandbox: set operation expects at least 2 args")
	}
	acc, err := setMembers(args[0])
	if err != nil {
		return Nil, err
	}
	for _, a := range args[1:] {
		m, err := setMembers(a)
		if err != nil {
			return Nil, err
		}
		acc = op(acc, m)
	}
	return Value{Kind: KindSet, Set: acc}, nil
}
