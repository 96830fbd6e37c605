package tool

import (
	"context"

	"github.com/rlmkit/rlm/sandbox"
)

// Recursor is the capability `llm-query` and `rlm-query` are bound against.
// It exists to break the mutual dependency between the sandbox tool tier and
// the iteration engine: tool has no import of engine, engine implements
// Recursor and hands the concrete value to CoreTools. Depth-counter
// bookkeeping (increment on entry, decrement on exit, fixed error value at
// the configured cap) is the Recursor implementation's responsibility, not
// the tool binding's — the binding only ever makes one call.
type Recursor interface {
	// LLMQuery performs a single bounded LLM call outside the iteration
	// loop and returns its raw text.
	LLMQuery(ctx context.Context, prompt string, querySpec string) (string, error)

	// RLMQuery spawns a sub-agent sharing the parent's store and depth
	// counter, running its own simplified iteration loop, and returns its
	// final answer value.
	RLMQuery(ctx context.Context, docContext, query string, querySpec string, maxIterations int) (any, error)
}

// LocalsProvider exposes an Executor's captured top-level bindings to the
// `list-locals`/`get-local`/`FINAL-VAR` core tools without tool importing
// sandbox.Executor concretely.
type LocalsProvider interface {
	Locals() map[string]sandbox.Value
}
