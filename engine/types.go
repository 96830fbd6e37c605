// Package engine implements the bounded LLM-sandbox iteration loop: build a
// request, parse the response into thinking/code, execute each snippet in
// order, detect a tagged FINAL value, and either return or give feedback and
// continue.
package engine

import (
	"time"

	"github.com/rlmkit/rlm/chat"
)

// AgentResponse is the fixed per-turn shape the engine parses every LLM
// reply into, independent of whatever output schema the caller's query
// ultimately wants its FINAL answer to match.
type AgentResponse struct {
	Thinking string   `json:"thinking"`
	Code     []string `json:"code"`
}

// Status reports how a Run terminated.
type Status string

const (
	StatusFinal         Status = "final"
	StatusMaxIterations Status = "max-iterations"
)

// Execution records one executed code snippet within an iteration.
type Execution struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Result     any    `json:"result,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// IterationRecord is one pass through the loop, kept for Trace.
type IterationRecord struct {
	Iteration  int         `json:"iteration"`
	Thinking   string      `json:"thinking"`
	RawContent string      `json:"raw_content,omitempty"`
	Executions []Execution `json:"executions"`
	Final      bool        `json:"final"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Trace is the full record of a Run, replayable for debugging or display
// via PrettyPrintTrace.
type Trace struct {
	Iterations []IterationRecord `json:"iterations"`
}

// Config bounds a Run. Zero-value fields resolve to the spec's defaults in
// New.
type Config struct {
	// MaxIterations caps the loop; spec default 50.
	MaxIterations int
	// KeepLastK is how many of the most recent messages step 1 always
	// retains beyond the system prompt; spec default 4.
	KeepLastK int
	// MaxContextTokens bounds step 1's reduction; 0 disables reduction.
	MaxContextTokens int
	// Model, Temperature, MaxTokens are forwarded to the transport as
	// chat.Options on every call.
	Model       string
	Temperature *float64
	MaxTokens   *int64
}

// DefaultMaxIterations is spec.md §4.5's default cap.
const DefaultMaxIterations = 50

// DefaultKeepLastK is spec.md §4.5 step 1's default retained-tail size.
const DefaultKeepLastK = 4

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.KeepLastK <= 0 {
		c.KeepLastK = DefaultKeepLastK
	}
	return c
}

// Input supplies one Run's starting state. The caller (typically the
// Environment facade) is responsible for rendering SystemPrompt via the
// prompt Builder and wiring a tool-invoking Executor — Run itself knows
// nothing about tool catalogs or stores.
type Input struct {
	Query         string
	SystemPrompt  string
	PlanContext   string
	History       []chat.Message
	MaxIterations int
}

// Output is a Run's result.
type Output struct {
	Answer          any
	Status          Status
	LastUsefulLocal any
	Iterations      int
	DurationMs      int64
	Trace           *Trace
	Messages        []chat.Message
}
