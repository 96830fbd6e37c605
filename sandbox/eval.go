package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// ToolInvoker dispatches a Tool-tagged Callable to its registered
// implementation. The tool package's Dispatcher satisfies this at
// runtime; sandbox itself has no knowledge of what a tool does.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args []Value) (Value, error)
}

// Evaluator walks a parsed program against a Scope. One Evaluator is created
// per Execute call; it owns the per-execution stdout buffer and the
// interrupt channel polled for timeout cancellation.
type Evaluator struct {
	allow     *AllowList
	invoker   ToolInvoker
	interrupt <-chan struct{}
	stdout    *strings.Builder
}

// NewEvaluator constructs an Evaluator. interrupt is closed by Execute's
// FutureTask cancellation path on deadline; the evaluator checks it before
// every call application so no store-mutating tool call runs after a
// timeout (spec.md §4.2, §5 "Timeout" testable property).
func NewEvaluator(allow *AllowList, invoker ToolInvoker, interrupt <-chan struct{}) *Evaluator {
	return &Evaluator{allow: allow, invoker: invoker, interrupt: interrupt, stdout: &strings.Builder{}}
}

// Stdout returns everything written via the `print`/`println` builtins.
func (e *Evaluator) Stdout() string { return e.stdout.String() }

func (e *Evaluator) cancelled() bool {
	select {
	case <-e.interrupt:
		return true
	default:
		return false
	}
}

// ErrTimedOut is surfaced when the interrupt channel fires mid-evaluation.
var ErrTimedOut = fmt.Errorf("sandbox: timed out")

// EvalProgram evaluates every top-level expression in order, returning the
// value of the last one (spec.md's multi-statement snippets evaluate
// sequentially; FINAL/FINAL-VAR short-circuit termination is the caller's
// concern at the engine layer, not the evaluator's).
func (e *Evaluator) EvalProgram(ctx context.Context, exprs []Expr, scope *Scope) (Value, error) {
	var last Value = Nil
	for _, expr := range exprs {
		if e.cancelled() {
			return Nil, ErrTimedOut
		}
		v, err := e.Eval(ctx, expr, scope)
		if err != nil {
			return Nil, err
		}
		last = v
	}
	return last, nil
}

func (e *Evaluator) Eval(ctx context.Context, expr Expr, scope *Scope) (Value, error) {
	if e.cancelled() {
		return Nil, ErrTimedOut
	}
	switch ex := expr.(type) {
	case LiteralExpr:
		return ex.Value, nil
	case SymbolExpr:
		return e.resolveSymbol(ex.Name, scope)
	case VectorExpr:
		items := make([]Value, len(ex.Items))
		for i, item := range ex.Items {
			v, err := e.Eval(ctx, item, scope)
			if err != nil {
				return Nil, err
			}
			items[i] = v
		}
		return Vector(items...), nil
	case MapExpr:
		m := make(map[string]Value, len(ex.Keys))
		for i, k := range ex.Keys {
			v, err := e.Eval(ctx, ex.Values[i], scope)
			if err != nil {
				return Nil, err
			}
			m[k] = v
		}
		return Map(m), nil
	case CallExpr:
		return e.evalCall(ctx, ex, scope)
	default:
		return Nil, fmt.Errorf("sandbox: unknown expression type %T", expr)
	}
}

func (e *Evaluator) resolveSymbol(name string, scope *Scope) (Value, error) {
	if v, ok := scope.Get(name); ok {
		return v, nil
	}
	if id, ok := builtinsByName[name]; ok {
		if !e.allow.Allowed(id) {
			return Nil, fmt.Errorf("%w: builtin %q", ErrNotAllowed, name)
		}
		return BuiltinCallable(id), nil
	}
	// Unresolved bare symbols are assumed to name a tool; the actual
	// allow/deny decision for tools lives in the ToolInvoker (the tool
	// registry enumerates what is registered, sandbox has no tool list of
	// its own), so resolution succeeds here and Invoke fails at call time
	// if the name is unregistered.
	return ToolCallable(name), nil
}

// specialForm reports whether head names a special form that must see its
// arguments unevaluated (def/fn/if/do/and/or all need this: if/and/or for
// short-circuiting, def/fn because their first argument(s) are binding
// forms, not expressions to evaluate).
func specialForm(name string) bool {
	switch name {
	case "def", "fn", "if", "do", "and", "or":
		return true
	default:
		return false
	}
}

func (e *Evaluator) evalCall(ctx context.Context, call CallExpr, scope *Scope) (Value, error) {
	if sym, ok := call.Head.(SymbolExpr); ok && specialForm(sym.Name) {
		return e.evalSpecialForm(ctx, sym.Name, call.Args, scope)
	}

	head, err := e.Eval(ctx, call.Head, scope)
	if err != nil {
		return Nil, err
	}
	if head.Kind != KindCallable {
		return Nil, fmt.Errorf("sandbox: %s is not callable", head.Kind)
	}

	args := make([]Value, len(call.Args))
	for i, a := range call.Args {
		v, err := e.Eval(ctx, a, scope)
		if err != nil {
			return Nil, err
		}
		args[i] = v
	}

	if e.cancelled() {
		return Nil, ErrTimedOut
	}

	switch head.Call.Tag {
	case CallableBuiltin:
		if !e.allow.Allowed(head.Call.Builtin) {
			return Nil, fmt.Errorf("%w: builtin %q", ErrNotAllowed, builtinNames[head.Call.Builtin])
		}
		return e.applyBuiltin(head.Call.Builtin, args)
	case CallableTool:
		if e.invoker == nil {
			return Nil, fmt.Errorf("sandbox: no tool invoker configured for %q", head.Call.Tool)
		}
		return e.invoker.Invoke(ctx, head.Call.Tool, args)
	case CallableClosure:
		return e.applyClosure(ctx, head.Call, args)
	default:
		return Nil, fmt.Errorf("sandbox: unknown callable tag")
	}
}

func (e *Evaluator) applyClosure(ctx context.Context, c Callable, args []Value) (Value, error) {
	if len(args) != len(c.Params) {
		return Nil, fmt.Errorf("sandbox: fn expects %d args, got %d", len(c.Params), len(args))
	}
	child := c.Env.child()
	for i, p := range c.Params {
		child.Set(p, args[i])
	}
	var result Value = Nil
	for _, expr := range c.Body {
		v, err := e.Eval(ctx, expr, child)
		if err != nil {
			return Nil, err
		}
		result = v
	}
	return result, nil
}

func (e *Evaluator) evalSpecialForm(ctx context.Context, name string, args []Expr, scope *Scope) (Value, error) {
	switch name {
	case "def":
		if len(args) != 2 {
			return Nil, fmt.Errorf("sandbox: def expects 2 args (name value), got %d", len(args))
		}
		sym, ok := args[0].(SymbolExpr)
		if !ok {
			return Nil, fmt.Errorf("sandbox: def's first argument must be a symbol")
		}
		v, err := e.Eval(ctx, args[1], scope)
		if err != nil {
			return Nil, err
		}
		scope.Set(sym.Name, v)
		return v, nil

	case "fn":
		if len(args) < 2 {
			return Nil, fmt.Errorf("sandbox: fn expects a parameter vector and a body")
		}
		paramVec, ok := args[0].(VectorExpr)
		if !ok {
			return Nil, fmt.Errorf("sandbox: fn's first argument must be a parameter vector")
		}
		params := make([]string, len(paramVec.Items))
		for i, p := range paramVec.Items {
			sym, ok := p.(SymbolExpr)
			if !ok {
				return Nil, fmt.Errorf("sandbox: fn parameters must be symbols")
			}
			params[i] = sym.Name
		}
		return Value{Kind: KindCallable, Call: Callable{
			Tag: CallableClosure, Params: params, Body: args[1:], Env: scope,
		}}, nil

	case "if":
		if len(args) < 2 || len(args) > 3 {
			return Nil, fmt.Errorf("sandbox: if expects (if cond then [else])")
		}
		cond, err := e.Eval(ctx, args[0], scope)
		if err != nil {
			return Nil, err
		}
		if cond.Truthy() {
			return e.Eval(ctx, args[1], scope)
		}
		if len(args) == 3 {
			return e.Eval(ctx, args[2], scope)
		}
		return Nil, nil

	case "do":
		var last Value = Nil
		for _, a := range args {
			v, err := e.Eval(ctx, a, scope)
			if err != nil {
				return Nil, err
			}
			last = v
		}
		return last, nil

	case "and":
		var last Value = Bool(true)
		for _, a := range args {
			v, err := e.Eval(ctx, a, scope)
			if err != nil {
				return Nil, err
			}
			if !v.Truthy() {
				return v, nil
			}
			last = v
		}
		return last, nil

	case "or":
		for _, a := range args {
			v, err := e.Eval(ctx, a, scope)
			if err != nil {
				return Nil, err
			}
			if v.Truthy() {
				return v, nil
			}
		}
		return Bool(false), nil

	default:
		return Nil, fmt.Errorf("sandbox: unknown special form %q", name)
	}
}
