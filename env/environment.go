package env

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	pkgassert "github.com/Tangerg/lynx/pkg/assert"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3/option"

	"github.com/rlmkit/rlm/chat"
	"github.com/rlmkit/rlm/engine"
	"github.com/rlmkit/rlm/examplecatalog"
	"github.com/rlmkit/rlm/ingest"
	"github.com/rlmkit/rlm/prompt"
	"github.com/rlmkit/rlm/refine"
	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
	"github.com/rlmkit/rlm/tool"
)

// Environment bundles everything one caller's worth of store, tool
// catalog, and pipelines needs, per spec.md §4.8: config, store, the
// shared recursion-depth counter, the persisted locals seed, the
// user-registered binding/doc tables, and the example catalog. It
// implements tool.Recursor itself so llm-query/rlm-query close over the
// same depth counter and store every sub-agent shares.
type Environment struct {
	cfg       Config
	transport chat.Transport
	store     *store.Store

	userTools *tool.Registry
	docs      map[string]string
	catalog   *examplecatalog.Catalog
	builder   *prompt.Builder

	ingestPipeline *ingest.Pipeline
	refinePipeline *refine.Pipeline

	depth atomic.Int32

	locals map[string]sandbox.Value
}

// CreateEnv implements create-env: builds a disposable store (or a
// persistent one rooted at cfg.PersistentDir, loading any prior snapshot),
// the retrying OpenAI transport, and the per-environment pipeline/catalog
// state. Required config fields are validated via pkg/assert, matching the
// teacher's construction-time-panic idiom.
func CreateEnv(cfg Config) (*Environment, error) {
	cfg = cfg.withDefaults()
	cfg.validate()

	var (
		st  *store.Store
		err error
	)
	if cfg.PersistentDir != "" {
		st, err = store.NewPersistent(cfg.PersistentDir)
	} else {
		st, err = store.NewDisposable()
	}
	if err != nil {
		return nil, fmt.Errorf("env: create store: %w", err)
	}

	var reqOpts []option.RequestOption
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	transport := chat.NewOpenAITransport(chat.OpenAITransportConfig{
		APIKey:         cfg.APIKey,
		Model:          cfg.DefaultModel,
		RequestOptions: reqOpts,
	})

	e := &Environment{
		cfg:            cfg,
		transport:      transport,
		store:          st,
		userTools:      tool.NewRegistry(),
		docs:           make(map[string]string),
		catalog:        examplecatalog.New(),
		builder:        prompt.NewBuilder(),
		ingestPipeline: ingest.New(transport),
		refinePipeline: refine.New(transport),
	}
	return e, nil
}

// MustCreateEnv panics if CreateEnv fails, for call sites that treat a
// broken environment as unrecoverable startup error.
func MustCreateEnv(cfg Config) *Environment {
	return pkgassert.ErrorIsNil(CreateEnv(cfg))
}

// RegisterFn implements register-fn!: binds symbol to a callable over the
// sandbox value boundary, documented by doc for the Prompt Builder's tool
// catalog. Returns env for chaining, per spec.md §6's "env" output column.
func (e *Environment) RegisterFn(symbol string, fn func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error), doc string) (*Environment, error) {
	if symbol == "" {
		return nil, fmt.Errorf("env: register-fn!: symbol is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("env: register-fn!: fn must be callable")
	}
	def, err := tool.NewDefinitionBuilder().WithName(symbol).WithDescription(doc).WithAutoDescription().Build()
	if err != nil {
		return nil, fmt.Errorf("env: register-fn!: %w", err)
	}
	e.userTools.Register(tool.NewFuncTool(def, fn))
	if doc != "" {
		e.docs[symbol] = doc
	}
	return e, nil
}

// RegisterDef implements register-def!: binds symbol to a constant value.
// The sandbox resolves a bare, uncalled symbol to a tool-tagged callable
// (spec.md §4.2/§8's bare-symbol hint) regardless of whether the
// registrant meant a function or a value, so a def is bound the same way a
// fn is — a zero-argument callable that always returns value — and the
// LLM is guided by doc to call it with parentheses.
func (e *Environment) RegisterDef(symbol string, value sandbox.Value, doc string) (*Environment, error) {
	return e.RegisterFn(symbol, func(context.Context, []sandbox.Value) (sandbox.Value, error) {
		return value, nil
	}, doc)
}

// Ingest implements ingest!: delegates to the Ingestion Pipeline and
// flushes afterward.
func (e *Environment) Ingest(ctx context.Context, docs []ingest.Document, opts ingest.Options) ([]ingest.Result, error) {
	results, err := e.ingestPipeline.Ingest(ctx, e.store, docs, opts)
	if err != nil {
		return nil, err
	}
	if err := e.store.Flush(); err != nil {
		return results, fmt.Errorf("env: ingest!: flush: %w", err)
	}
	return results, nil
}

// invokerRef forwards sandbox.ToolInvoker to whatever Dispatcher a Query
// call builds, breaking the construction cycle between the Executor (which
// needs a ToolInvoker up front) and CoreTools (which needs that same
// Executor as a LocalsProvider) — the same pattern engine's own tests use.
type invokerRef struct {
	d *tool.Dispatcher
}

func (r *invokerRef) Invoke(ctx context.Context, name string, args []sandbox.Value) (sandbox.Value, error) {
	return r.d.Invoke(ctx, name, args)
}

// Query implements query!: builds a fresh sandbox (so bindings reflect the
// current registration table), runs the iteration engine, optionally
// refines the answer, persists any learning signal, flushes, and returns
// the full result map of spec.md §4.8.
func (e *Environment) Query(ctx context.Context, queryStr string, opts QueryOptions) (QueryResult, error) {
	ref := &invokerRef{}
	timeout := e.cfg.SandboxTimeout
	ex := sandbox.NewExecutor(sandbox.DefaultAllowList(), ref, e.locals, timeout)

	core := tool.NewRegistry().Register(tool.CoreTools(e.store, ex, e)...)
	dispatcher := tool.NewDispatcher(core, e.userTools)
	ref.d = dispatcher

	catalog := dispatcher.Catalog()
	defs := make([]*tool.Definition, 0, len(catalog))
	for _, t := range catalog {
		defs = append(defs, t.Definition())
	}

	systemPrompt, err := e.builder.Render(defs, prompt.Options{
		OutputSchemaInstructions: opts.Spec,
		Examples:                 e.catalog,
		HistoryEnabled:           true,
		CustomDocs:               e.customDocList(),
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("env: query!: render prompt: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxIterations
	}

	eng, err := engine.New(e.transport, engine.Config{
		MaxIterations:    maxIterations,
		MaxContextTokens: opts.MaxContextTokens,
		Model:            model,
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("env: query!: build engine: %w", err)
	}

	out, err := eng.Run(ctx, ex, engine.Input{
		Query:        queryStr,
		SystemPrompt: systemPrompt,
		PlanContext:  opts.Plan,
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("env: query!: %w", err)
	}
	e.locals = ex.Locals()

	historyTokens, err := engine.CountTokens(out.Messages)
	if err != nil {
		return QueryResult{}, fmt.Errorf("env: query!: count history tokens: %w", err)
	}

	result := QueryResult{
		Answer:        out.Answer,
		RawAnswer:     stringifyAnswer(out.Answer),
		Trace:         out.Trace,
		Iterations:    out.Iterations,
		DurationMs:    out.DurationMs,
		HistoryTokens: historyTokens,
	}
	if out.Status == engine.StatusMaxIterations {
		result.Status = string(engine.StatusMaxIterations)
	}

	if opts.Refine {
		refOut, err := e.refinePipeline.Run(ctx, refine.Input{Query: queryStr, Answer: result.RawAnswer}, refine.Options{
			MaxIterations:  opts.MaxRefinements,
			ScoreThreshold: opts.MinScore,
			SourceDocs:     opts.SourceDocs,
		})
		if err != nil {
			return QueryResult{}, fmt.Errorf("env: query!: refine: %w", err)
		}
		result.Answer = refOut.FinalAnswer
		eval := refOut.Evaluation
		result.EvalScores = &eval
		result.RefinementCount = refOut.Iterations
		if opts.VerifyClaims {
			result.VerifiedClaims = refOut.Verifications
		}

		if opts.Learn {
			e.recordLearning(queryStr, refOut)
		}
	}

	if err := e.store.Flush(); err != nil {
		return result, fmt.Errorf("env: query!: flush: %w", err)
	}
	return result, nil
}

// recordLearning persists an example (for the prompt builder's few-shot
// splice) and a learning insight when the query's refinement pass surfaced
// one, per spec.md §4.8's "persist any claims/examples generated".
func (e *Environment) recordLearning(queryStr string, refOut refine.Result) {
	score := int(refOut.Evaluation.Overall * float64(examplecatalog.MaxScore))
	e.catalog.Add(uuid.NewString(), examplecatalog.Example{
		Query:     queryStr,
		Answer:    refOut.FinalAnswer,
		Score:     score,
		Feedback:  refOut.Evaluation.Summary,
		Timestamp: time.Now(),
	})
	if !refOut.Evaluation.Correct {
		_ = e.store.InsertLearning(store.Learning{
			ID:      uuid.NewString(),
			Insight: refOut.Evaluation.Summary,
			Context: queryStr,
		})
	}
}

func (e *Environment) customDocList() []string {
	symbols := make([]string, 0, len(e.docs))
	for sym := range e.docs {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, fmt.Sprintf("%s: %s", sym, e.docs[sym]))
	}
	return out
}

// stringifyAnswer renders a FINAL'd native value as text for the
// refinement pipeline's claim-decomposition input, which operates on prose
// rather than on structured data.
func stringifyAnswer(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Dispose implements dispose!: flushes the store and, for a disposable
// store, removes its backing directory.
func (e *Environment) Dispose() error {
	return e.store.Dispose()
}

// LLMQuery implements tool.Recursor: a single bounded LLM call outside the
// iteration loop, gated by the shared depth counter.
func (e *Environment) LLMQuery(ctx context.Context, queryPrompt, querySpec string) (string, error) {
	if e.depth.Load() >= int32(e.cfg.MaxRecursionDepth) {
		return recursionCapMessage, nil
	}
	e.depth.Add(1)
	defer e.depth.Add(-1)

	system := "You are a focused sub-query assistant."
	if querySpec != "" {
		system = fmt.Sprintf("%s\n\nOutput requirements:\n%s", system, querySpec)
	}
	resp, err := e.transport.Call(ctx, chat.Request{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: system},
			{Role: chat.RoleUser, Content: queryPrompt},
		},
		Options: chat.Options{Model: e.cfg.DefaultModel},
	})
	if err != nil {
		return "", fmt.Errorf("env: llm-query: %w", err)
	}
	return resp.Message.Content, nil
}

// recursionCapMessage is the fixed error-record text llm-query/rlm-query
// return once the shared depth counter reaches its cap (spec.md §7
// "Recursion errors: depth exceeded ... returned as a fixed string/record
// from the tool itself", never by invoking the transport).
const recursionCapMessage = "recursion-depth-exceeded"

// RLMQuery implements tool.Recursor: spawns a sub-agent sharing the
// parent's store and depth counter, running its own simplified iteration
// loop. Per §9's "only core bindings propagate to sub-agents" decision,
// the sub-agent gets no user-registered tools and its CoreTools is built
// with recursor=nil, so its llm-query/rlm-query return an error instead of
// nesting further.
func (e *Environment) RLMQuery(ctx context.Context, docContext, query string, querySpec string, maxIterations int) (any, error) {
	if e.depth.Load() >= int32(e.cfg.MaxRecursionDepth) {
		return recursionCapMessage, nil
	}
	e.depth.Add(1)
	defer e.depth.Add(-1)

	ref := &invokerRef{}
	subEx := sandbox.NewExecutor(sandbox.DefaultAllowList(), ref, nil, e.cfg.SandboxTimeout)
	core := tool.NewRegistry().Register(tool.CoreTools(e.store, subEx, nil)...)
	dispatcher := tool.NewDispatcher(core, nil)
	ref.d = dispatcher

	catalog := dispatcher.Catalog()
	defs := make([]*tool.Definition, 0, len(catalog))
	for _, t := range catalog {
		defs = append(defs, t.Definition())
	}
	systemPrompt, err := e.builder.Render(defs, prompt.Options{OutputSchemaInstructions: querySpec})
	if err != nil {
		return nil, fmt.Errorf("env: rlm-query: render prompt: %w", err)
	}

	if maxIterations <= 0 {
		maxIterations = engine.DefaultMaxIterations
	}
	eng, err := engine.New(e.transport, engine.Config{MaxIterations: maxIterations, Model: e.cfg.DefaultModel})
	if err != nil {
		return nil, fmt.Errorf("env: rlm-query: build engine: %w", err)
	}

	out, err := eng.Run(ctx, subEx, engine.Input{Query: query, SystemPrompt: systemPrompt, PlanContext: docContext})
	if err != nil {
		return nil, fmt.Errorf("env: rlm-query: %w", err)
	}
	return out.Answer, nil
}
