package tool

import (
	"context"
	"fmt"

	"github.com/rlmkit/rlm/sandbox"
)

// ErrUnknownTool is returned when a sandbox callable names a tool present
// in neither registry; the evaluator surfaces this as a regular evaluation
// error, same as calling an unbound builtin.
type ErrUnknownTool struct{ Name string }

func (e ErrUnknownTool) Error() string {
	return fmt.Sprintf("tool: no tool registered for %q", e.Name)
}

// Dispatcher satisfies sandbox.ToolInvoker, generalizing the chat-completion
// invoker's validate-then-execute shape (confirm the call names a
// registered tool, then run it and hand back the result) to sandbox
// Tool-tagged callables. It checks the core registry before the
// user-registered one, so a user cannot shadow a core tool by name.
type Dispatcher struct {
	core *Registry
	user *Registry
}

// NewDispatcher builds a Dispatcher over the core and user tool tiers.
// Either may be nil, in which case it is treated as empty.
func NewDispatcher(core, user *Registry) *Dispatcher {
	return &Dispatcher{core: core, user: user}
}

// Invoke implements sandbox.ToolInvoker.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args []sandbox.Value) (sandbox.Value, error) {
	t, ok := d.find(name)
	if !ok {
		return sandbox.Nil, ErrUnknownTool{Name: name}
	}
	return t.Call(ctx, args)
}

func (d *Dispatcher) find(name string) (Tool, bool) {
	if d.core != nil {
		if t, ok := d.core.Find(name); ok {
			return t, true
		}
	}
	if d.user != nil {
		if t, ok := d.user.Find(name); ok {
			return t, true
		}
	}
	return nil, false
}

// Catalog returns every tool across both tiers, for the Prompt Builder's
// tool-catalog splice.
func (d *Dispatcher) Catalog() []Tool {
	var out []Tool
	if d.core != nil {
		out = append(out, d.core.All()...)
	}
	if d.user != nil {
		out = append(out, d.user.All()...)
	}
	return out
}
