package sandbox

import (
	"context"
	"sync"
	"time"

	pkgsafe "github.com/Tangerg/lynx/pkg/safe"
	pkgsync "github.com/Tangerg/lynx/pkg/sync"
)

// DefaultTimeout is the wall-clock deadline applied to a single Execute call
// absent an override (spec.md §4.2 "default 30 seconds").
const DefaultTimeout = 30 * time.Second

// Executor runs snippets against a persistent Scope of captured locals. One
// Executor corresponds to one query's worth of back-and-forth with the LLM;
// successive Execute calls see each other's top-level defs.
type Executor struct {
	allow   *AllowList
	invoker ToolInvoker
	timeout time.Duration

	mu     sync.Mutex
	locals map[string]Value
}

// NewExecutor constructs an Executor seeded with locals (typically the
// environment's existing Locals map at query start, or empty for a fresh
// query/sub-agent — spec.md §6 "fresh sandbox bindings" rule).
func NewExecutor(allow *AllowList, invoker ToolInvoker, locals map[string]Value, timeout time.Duration) *Executor {
	if allow == nil {
		allow = DefaultAllowList()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	seed := make(map[string]Value, len(locals))
	for k, v := range locals {
		seed[k] = v
	}
	return &Executor{allow: allow, invoker: invoker, timeout: timeout, locals: seed}
}

// Locals returns a copy of the currently captured top-level bindings.
func (ex *Executor) Locals() map[string]Value {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	out := make(map[string]Value, len(ex.locals))
	for k, v := range ex.locals {
		out[k] = v
	}
	return out
}

// Execute parses and evaluates code under a deadline, recovers panics inside
// builtin/tool implementations, realizes the resulting value, diffs the
// top-level name table, and merges newly captured names back into the
// Executor's locals (spec.md §4.2 in full).
func (ex *Executor) Execute(ctx context.Context, code string) Result {
	start := time.Now()

	exprs, err := ParseProgram(code)
	if err != nil {
		return Result{Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	ex.mu.Lock()
	seed := make(map[string]Value, len(ex.locals))
	for k, v := range ex.locals {
		seed[k] = v
	}
	ex.mu.Unlock()
	scope := NewScope(seed)

	deadlineCtx, cancel := context.WithTimeout(ctx, ex.timeout)
	defer cancel()

	type outcome struct {
		value  Value
		stdout string
		err    error
	}

	task := pkgsync.NewFutureTask(func(interrupt <-chan struct{}) (outcome, error) {
		evaluator := NewEvaluator(ex.allow, ex.invoker, interrupt)
		var out outcome
		var panicErr error
		pkgsafe.WithRecover(func() {
			v, evalErr := evaluator.EvalProgram(deadlineCtx, exprs, scope)
			out = outcome{value: v, stdout: evaluator.Stdout(), err: evalErr}
		}, func(err error) { panicErr = err })()
		if panicErr != nil {
			return outcome{}, panicErr
		}
		return out, out.err
	})
	go task.Run()

	out, err := task.GetWithContext(deadlineCtx)
	duration := time.Since(start).Milliseconds()

	if deadlineCtx.Err() != nil {
		task.Cancel(true)
		return Result{
			Error:      "Timeout",
			TimedOut:   true,
			DurationMs: duration,
		}
	}
	if err != nil {
		return Result{Stdout: out.stdout, Error: err.Error(), DurationMs: duration}
	}

	realized, err := Realize(ctx, out.value)
	if err != nil {
		return Result{Stdout: out.stdout, Error: err.Error(), DurationMs: duration}
	}

	captured := diffNewNames(seed, scope.OwnNames())
	if len(captured) > 0 {
		ex.mu.Lock()
		for k, v := range captured {
			ex.locals[k] = v
		}
		ex.mu.Unlock()
	}

	return Result{
		Value:      ToNative(realized),
		Stdout:     out.stdout,
		DurationMs: duration,
		Captured:   captured,
	}
}

func diffNewNames(before, after map[string]Value) map[string]Value {
	diff := make(map[string]Value)
	for k, v := range after {
		prior, existed := before[k]
		if !existed || CanonicalKey(prior) != CanonicalKey(v) {
			diff[k] = v
		}
	}
	return diff
}
