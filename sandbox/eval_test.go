package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, code string) Value {
	t.Helper()
	exprs, err := ParseProgram(code)
	require.NoError(t, err)
	ev := NewEvaluator(DefaultAllowList(), nil, make(chan struct{}))
	scope := NewScope(nil)
	v, err := ev.EvalProgram(context.Background(), exprs, scope)
	require.NoError(t, err)
	realized, err := Realize(context.Background(), v)
	require.NoError(t, err)
	return realized
}

func TestArithmetic(t *testing.T) {
	require.Equal(t, Int(7), run(t, "(+ 3 4)"))
	require.Equal(t, Int(6), run(t, "(* 2 3)"))
	require.Equal(t, Float(1.5), run(t, "(/ 3.0 2.0)"))
}

func TestDefAndReduce(t *testing.T) {
	v := run(t, "(def xs [1 2 3]) (reduce + 0 xs)")
	require.Equal(t, Int(6), v)
}

func TestIfBranching(t *testing.T) {
	require.Equal(t, Str("yes"), run(t, `(if (> 5 3) "yes" "no")`))
	require.Equal(t, Str("no"), run(t, `(if (< 5 3) "yes" "no")`))
}

func TestMapFilterLazyRealized(t *testing.T) {
	v := run(t, "(filter (fn [x] (> x 2)) (map (fn [x] (* x 2)) [1 2 3]))")
	require.Equal(t, KindVector, v.Kind)
	require.Equal(t, []Value{Int(4), Int(6)}, v.Vec)
}

func TestRangeIsLazyUntilRealized(t *testing.T) {
	exprs, err := ParseProgram("(range 5)")
	require.NoError(t, err)
	ev := NewEvaluator(DefaultAllowList(), nil, make(chan struct{}))
	v, err := ev.EvalProgram(context.Background(), exprs, NewScope(nil))
	require.NoError(t, err)
	require.Equal(t, KindLazy, v.Kind)

	realized, err := Realize(context.Background(), v)
	require.NoError(t, err)
	require.Equal(t, KindVector, realized.Kind)
	require.Len(t, realized.Vec, 5)
}

func TestTopLevelVariableCaptureAcrossSnippets(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	r1 := ex.Execute(context.Background(), "(def xs [1 2 3])")
	require.Empty(t, r1.Error)
	require.Contains(t, r1.Captured, "xs")

	r2 := ex.Execute(context.Background(), "(reduce + 0 xs)")
	require.Empty(t, r2.Error)
	require.Equal(t, int64(6), r2.Value)
}

func TestDisallowedBuiltinRejected(t *testing.T) {
	allow := NewAllowList(BDef) // only def permitted
	exprs, err := ParseProgram("(+ 1 2)")
	require.NoError(t, err)
	ev := NewEvaluator(allow, nil, make(chan struct{}))
	_, err = ev.EvalProgram(context.Background(), exprs, NewScope(nil))
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestUnresolvedSymbolWithoutInvokerFails(t *testing.T) {
	exprs, err := ParseProgram("(some-unregistered-tool 1)")
	require.NoError(t, err)
	ev := NewEvaluator(DefaultAllowList(), nil, make(chan struct{}))
	_, err = ev.EvalProgram(context.Background(), exprs, NewScope(nil))
	require.Error(t, err)
}

func TestStringBuiltins(t *testing.T) {
	require.Equal(t, Str("A,B"), run(t, `(str-join "," ["A" "B"])`))
	require.Equal(t, Bool(true), run(t, `(str-contains? "hello world" "world")`))
}

func TestSetOperationsViaBuiltins(t *testing.T) {
	ev := NewEvaluator(DefaultAllowList(), nil, make(chan struct{}))
	union, err := ev.applyBuiltin(BUnion, []Value{SetOf(Int(1), Int(2)), SetOf(Int(2), Int(3))})
	require.NoError(t, err)
	require.Len(t, union.Set, 3)

	inter, err := ev.applyBuiltin(BIntersection, []Value{SetOf(Int(1), Int(2)), SetOf(Int(2), Int(3))})
	require.NoError(t, err)
	require.Len(t, inter.Set, 1)
}
