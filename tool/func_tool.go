package tool

import (
	"context"

	"github.com/rlmkit/rlm/sandbox"
)

// FuncTool adapts a plain function to the Tool interface. Every core tool
// and every user-registered tool is a FuncTool; only the Definition and the
// closure differ between the two tiers.
type FuncTool struct {
	def *Definition
	fn  func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error)
}

// NewFuncTool builds a Tool from a Definition and an implementation.
func NewFuncTool(def *Definition, fn func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error)) *FuncTool {
	return &FuncTool{def: def, fn: fn}
}

func (t *FuncTool) Definition() *Definition { return t.def }

func (t *FuncTool) Call(ctx context.Context, args []sandbox.Value) (sandbox.Value, error) {
	return t.fn(ctx, args)
}
