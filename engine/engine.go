package engine

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rlmkit/rlm/chat"
	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/tool"
)

// Engine runs the bounded LLM-sandbox loop of spec.md §4.5. It knows
// nothing about tool catalogs, stores, or prompt construction — Input
// supplies an already-rendered system prompt and Run is handed a
// tool-wired sandbox.Executor by the caller.
type Engine struct {
	transport chat.Transport
	parser    chat.StructuredParser[AgentResponse]
	counter   *tokenCounter
	cfg       Config
}

// New constructs an Engine. transport is the LLM collaborator every
// iteration calls; cfg's zero fields resolve to spec defaults.
func New(transport chat.Transport, cfg Config) (*Engine, error) {
	counter, err := newTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("engine: build token counter: %w", err)
	}
	return &Engine{
		transport: transport,
		parser:    chat.NewJSONParser[AgentResponse](),
		counter:   counter,
		cfg:       cfg.withDefaults(),
	}, nil
}

var fencedCodeBlock = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*)\\n?(.*?)```")

// extractFencedCode pulls every fenced code block out of raw text, the
// fallback path when structured parsing fails.
func extractFencedCode(raw string) []string {
	matches := fencedCodeBlock.FindAllStringSubmatch(raw, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, trimTrailingNewline(m[1]))
	}
	return out
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Run executes the bounded iteration loop against ex, an Executor the
// caller has already wired with a tool.Dispatcher (or equivalent
// sandbox.ToolInvoker) and seeded with any prior locals.
func (e *Engine) Run(ctx context.Context, ex *sandbox.Executor, input Input) (Output, error) {
	start := time.Now()
	maxIterations := input.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxIterations
	}

	messages := e.buildInitialMessages(input)
	trace := &Trace{}

	var lastUsefulLocal any

	for iteration := 1; iteration <= maxIterations; iteration++ {
		windowed := messages
		if e.cfg.MaxContextTokens > 0 {
			windowed = reduceMessages(messages, e.cfg.MaxContextTokens, e.cfg.KeepLastK, e.counter)
		}

		resp, err := e.transport.Call(ctx, chat.Request{
			Messages: windowed,
			Options: chat.Options{
				Model:       e.cfg.Model,
				Temperature: e.cfg.Temperature,
				MaxTokens:   e.cfg.MaxTokens,
			},
		})
		if err != nil {
			return Output{}, fmt.Errorf("engine: transport call on iteration %d: %w", iteration, err)
		}
		assistantMsg := resp.Message
		assistantMsg.Iteration = iteration
		messages = append(messages, assistantMsg)

		thinking, snippets := e.parseTurn(assistantMsg.Content)

		record := IterationRecord{
			Iteration:  iteration,
			Thinking:   thinking,
			RawContent: assistantMsg.Content,
			Timestamp:  time.Now(),
		}

		var finalValue any
		terminated := false

		for i, code := range snippets {
			if trimTrailingNewline(code) == "" {
				continue
			}
			result := ex.Execute(ctx, code)
			execID := fmt.Sprintf("%d.%d", iteration, i+1)
			exec := Execution{
				ID:         execID,
				Code:       code,
				Result:     result.Value,
				Stdout:     result.Stdout,
				Error:      result.Error,
				DurationMs: result.DurationMs,
				TimedOut:   result.TimedOut,
			}
			record.Executions = append(record.Executions, exec)

			for _, v := range result.Captured {
				if v.Kind != sandbox.KindCallable {
					lastUsefulLocal = sandbox.ToNative(v)
				}
			}

			if exec.Error == "" && !exec.TimedOut {
				if answer, ok := tool.IsFinalNative(result.Value); ok {
					finalValue = answer
					terminated = true
				} else if answer, ok := tool.FinalFromStdout(result.Stdout); ok {
					finalValue = answer
					terminated = true
				}
			}
			if terminated {
				break
			}
		}

		if terminated {
			record.Final = true
			trace.Iterations = append(trace.Iterations, record)
			return Output{
				Answer:          finalValue,
				Status:          StatusFinal,
				LastUsefulLocal: lastUsefulLocal,
				Iterations:      iteration,
				DurationMs:      time.Since(start).Milliseconds(),
				Trace:           trace,
				Messages:        messages,
			}, nil
		}

		trace.Iterations = append(trace.Iterations, record)

		feedback := buildFeedback(record.Executions)
		messages = append(messages, chat.Message{
			Role:      chat.RoleUser,
			Content:   feedback,
			Iteration: iteration,
			Timestamp: time.Now(),
		})
	}

	return Output{
		Status:          StatusMaxIterations,
		LastUsefulLocal: lastUsefulLocal,
		Iterations:      maxIterations,
		DurationMs:      time.Since(start).Milliseconds(),
		Trace:           trace,
		Messages:        messages,
	}, nil
}

func (e *Engine) buildInitialMessages(input Input) []chat.Message {
	now := time.Now()
	messages := make([]chat.Message, 0, len(input.History)+2)
	if input.SystemPrompt != "" {
		messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: input.SystemPrompt, Timestamp: now})
	}
	messages = append(messages, input.History...)

	query := input.Query
	if input.PlanContext != "" {
		query = fmt.Sprintf("<context>\n%s\n</context>\n\n%s", input.PlanContext, input.Query)
	}
	messages = append(messages, chat.Message{Role: chat.RoleUser, Content: query, Timestamp: now})
	return messages
}

// parseTurn implements step 3: structured parse, falling back to fenced
// code-block extraction with the whole raw text as thinking.
func (e *Engine) parseTurn(content string) (thinking string, code []string) {
	parsed, err := e.parser.Parse(content)
	if err == nil {
		return parsed.Thinking, parsed.Code
	}
	return content, extractFencedCode(content)
}
