package refine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Tangerg/lynx/flow"
	"github.com/gammazero/workerpool"

	"github.com/rlmkit/rlm/chat"
	"github.com/rlmkit/rlm/store"
)

// Pipeline runs the six-phase refinement chain over a query's answer.
// One Pipeline is reused across many Run calls; each Run assembles its own
// flow graphs since the per-claim Parallel stage's shape depends on how
// many claims the decompose phase just produced.
type Pipeline struct {
	transport chat.Transport
}

// New builds a Pipeline over transport, the structured-LLM-call
// collaborator every phase goes through.
func New(transport chat.Transport) *Pipeline {
	return &Pipeline{transport: transport}
}

// stepFunc adapts a plain context/any function to flow.Node[any, any],
// the shape every flow.Builder stage in this package is assembled from.
type stepFunc func(ctx context.Context, in any) (any, error)

func (f stepFunc) Run(ctx context.Context, in any) (any, error) { return f(ctx, in) }

// runState threads between phases as the flow graphs' shared any payload.
type runState struct {
	opts            Options
	query           string
	claims          []Claim
	questions       []string
	verifications   []Verification
	inconsistencies []string
	eval            Evaluation
	scores          []float64
	answer          string
	iteration       int
}

// Run executes the full pipeline over input and returns the refined
// result. When input.Query has no decomposable claims the pipeline still
// runs evaluate/revise over the answer as-is.
func (p *Pipeline) Run(ctx context.Context, input Input, opts Options) (Result, error) {
	opts = opts.withDefaults()
	st := &runState{opts: opts, query: input.Query, answer: input.Answer}

	planningFlow, err := flow.NewBuilder().
		Then(stepFunc(p.decomposePhase)).
		Then(stepFunc(p.planVerifyPhase)).
		Build()
	if err != nil {
		return Result{}, fmt.Errorf("refine: build planning flow: %w", err)
	}
	out, err := planningFlow.Run(ctx, st)
	if err != nil {
		return Result{}, fmt.Errorf("refine: planning phase: %w", err)
	}
	st = out.(*runState)

	if len(st.claims) > 0 {
		verifyFlow, err := p.buildVerifyFlow(st)
		if err != nil {
			return Result{}, fmt.Errorf("refine: build verify flow: %w", err)
		}
		out, err = verifyFlow.Run(ctx, st)
		if err != nil {
			return Result{}, fmt.Errorf("refine: verify phase: %w", err)
		}
		st = out.(*runState)
	}

	finishFlow, err := flow.NewBuilder().
		Then(stepFunc(p.inconsistencyPhase)).
		Then(stepFunc(p.evaluatePhase)).
		Loop(func(l *flow.LoopBuilder) {
			l.WithNode(stepFunc(p.revisePhase)).
				WithMaxIterations(maxLoopIterations(opts)).
				WithTerminator(p.terminator(opts))
		}).
		Build()
	if err != nil {
		return Result{}, fmt.Errorf("refine: build finishing flow: %w", err)
	}
	out, err = finishFlow.Run(ctx, st)
	if err != nil {
		return Result{}, fmt.Errorf("refine: finishing phase: %w", err)
	}
	st = out.(*runState)

	return Result{
		FinalAnswer:     st.answer,
		Claims:          st.claims,
		Verifications:   st.verifications,
		Inconsistencies: st.inconsistencies,
		Evaluation:      st.eval,
		Gradient:        gradientOf(st.scores, opts.ScoreWindow),
		Iterations:      st.iteration,
	}, nil
}

// maxLoopIterations translates the :fixed/:both policies into the Loop
// node's hard cap; :threshold alone relies entirely on the Terminator.
// When source documents are supplied, spec.md §4.6's last paragraph forces
// the revise loop to a single pass regardless of policy — citations ground
// each verification in the provided excerpts, so repeated revision rounds
// would just re-litigate the same fixed source material.
func maxLoopIterations(opts Options) int {
	if len(opts.SourceDocs) > 0 {
		return 1
	}
	if opts.Policy == PolicyThreshold {
		return 0
	}
	return opts.MaxIterations
}

// terminator encodes the :threshold | :fixed | :both stopping policy
// (spec.md §4.6). Iteration is 0-based, matching flow.Loop's convention.
func (p *Pipeline) terminator(opts Options) func(context.Context, int, any, any) (bool, error) {
	return func(_ context.Context, iteration int, _ any, output any) (bool, error) {
		st := output.(*runState)
		switch opts.Policy {
		case PolicyFixed:
			return false, nil // MaxIterations on the Loop node itself governs
		case PolicyThreshold:
			return st.eval.Overall >= opts.ScoreThreshold, nil
		default: // :both
			return st.eval.Overall >= opts.ScoreThreshold, nil
		}
	}
}

func (p *Pipeline) callStructured(ctx context.Context, system, user string, parser chat.StructuredParser[any]) (any, error) {
	system = system + "\n\n" + parser.Instructions()
	resp, err := p.transport.Call(ctx, chat.Request{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: system},
			{Role: chat.RoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, err
	}
	return parser.Parse(resp.Message.Content)
}

func (p *Pipeline) decomposePhase(ctx context.Context, in any) (any, error) {
	st := in.(*runState)
	out, err := p.callStructured(ctx,
		"Decompose the answer below into 3 to 10 atomic claims. Each claim is "+
			"factual, inference, or subjective, with a confidence in [0,1] and a "+
			"verifiable? flag (false for subjective or unverifiable claims).",
		fmt.Sprintf("Query: %s\n\nAnswer: %s", st.query, st.answer),
		chat.JSONParserAsAnyOf[DecomposeResult]())
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	st.claims = out.(DecomposeResult).Claims
	return st, nil
}

func (p *Pipeline) planVerifyPhase(ctx context.Context, in any) (any, error) {
	st := in.(*runState)
	if len(st.claims) == 0 {
		return st, nil
	}

	var b strings.Builder
	for i, c := range st.claims {
		fmt.Fprintf(&b, "%d. [%s, verifiable=%v] %s\n", i+1, c.Category, c.Verifiable, c.Text)
	}

	out, err := p.callStructured(ctx,
		"For each numbered claim below that is verifiable, write one standalone "+
			"verification question that could be answered without seeing the other "+
			"claims. For non-verifiable claims, emit an empty string at that "+
			"position. Return exactly one question per claim, in order.",
		b.String(),
		chat.JSONParserAsAnyOf[PlanResult]())
	if err != nil {
		return nil, fmt.Errorf("plan-verify: %w", err)
	}
	questions := out.(PlanResult).Questions
	for len(questions) < len(st.claims) {
		questions = append(questions, "")
	}
	st.questions = questions[:len(st.claims)]
	return st, nil
}

// buildVerifyFlow assembles a Parallel stage with one node per claim,
// bounded by a workerpool sized opts.Concurrency. Subjective or
// non-verifiable claims are resolved locally to a fixed uncertain verdict
// without a node at all, per §4.6's "marked uncertain without an LLM call".
func (p *Pipeline) buildVerifyFlow(st *runState) (flow.Node[any, any], error) {
	pool := workerpool.New(st.opts.Concurrency)

	var nodes []flow.Node[any, any]
	for i, claim := range st.claims {
		i, claim := i, claim
		question := ""
		if i < len(st.questions) {
			question = st.questions[i]
		}
		if !claim.Verifiable || claim.Category == CategorySubjective {
			nodes = append(nodes, stepFunc(func(context.Context, any) (any, error) {
				return indexedVerification{index: i, v: Verification{Claim: claim, Verdict: store.VerdictUncertain}}, nil
			}))
			continue
		}
		nodes = append(nodes, &pooledNode{pool: pool, run: func(ctx context.Context) (any, error) {
			v, err := p.verifyClaim(ctx, claim, question, st.opts.SourceDocs)
			if err != nil {
				return indexedVerification{index: i, v: Verification{Claim: claim, Question: question, Verdict: store.VerdictUncertain}}, nil
			}
			return indexedVerification{index: i, v: v}, nil
		}})
	}

	aggregate := func(_ context.Context, results []any) (any, error) {
		pool.StopWait()
		indexed := make([]indexedVerification, 0, len(results))
		for _, r := range results {
			if iv, ok := r.(indexedVerification); ok {
				indexed = append(indexed, iv)
			}
		}
		sort.Slice(indexed, func(a, b int) bool { return indexed[a].index < indexed[b].index })
		st.verifications = make([]Verification, len(indexed))
		for i, iv := range indexed {
			st.verifications[i] = iv.v
		}
		return st, nil
	}

	return flow.NewBuilder().
		Parallel(func(pb *flow.ParallelBuilder) {
			pb.WithNodes(nodes...).WithWaitAll().WithAggregator(aggregate)
		}).
		Build()
}

// indexedVerification tags a factored verify call's result with its
// original claim position, since the Parallel stage's result order is not
// guaranteed to match submission order (spec.md §5 requires it be
// restored before Result.Verifications is returned).
type indexedVerification struct {
	index int
	v     Verification
}

// pooledNode runs fn on pool rather than directly on the caller's
// goroutine, giving the Parallel stage's unbounded fan-out a bounded
// concurrency ceiling.
type pooledNode struct {
	pool *workerpool.WorkerPool
	run  func(ctx context.Context) (any, error)
}

func (n *pooledNode) Run(ctx context.Context, _ any) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	n.pool.Submit(func() {
		v, err := n.run(ctx)
		done <- outcome{v, err}
	})
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) verifyClaim(ctx context.Context, claim Claim, question string, docs []SourceExcerpt) (Verification, error) {
	user := fmt.Sprintf("Claim: %s\nQuestion: %s", claim.Text, question)
	if len(docs) > 0 {
		user += "\n\nSource excerpts:\n" + buildSourceContext(docs, SourceExcerptByteCap)
	}

	out, err := p.callStructured(ctx,
		"Answer the verification question independently, using only the claim, "+
			"the question, and any source excerpts provided. Return a verdict of "+
			"correct, incorrect, partially-correct, or uncertain. If source "+
			"excerpts are present, cite the one the verdict rests on.",
		user,
		chat.JSONParserAsAnyOf[VerifyResult]())
	if err != nil {
		return Verification{}, err
	}
	result := out.(VerifyResult)
	return Verification{
		Claim:      claim,
		Question:   question,
		Answer:     result.Answer,
		Verdict:    store.VerificationVerdict(result.Verdict),
		Correction: result.Correction,
		Source:     result.Source,
	}, nil
}

// buildSourceContext splits cap bytes evenly across docs (fair sharing per
// §4.6) and concatenates the resulting excerpts.
func buildSourceContext(docs []SourceExcerpt, byteCap int) string {
	if len(docs) == 0 {
		return ""
	}
	perDoc := byteCap / len(docs)
	var b strings.Builder
	for _, d := range docs {
		text := d.Text
		if len(text) > perDoc {
			text = text[:perDoc]
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", d.DocumentID, text)
	}
	return b.String()
}

func (p *Pipeline) inconsistencyPhase(ctx context.Context, in any) (any, error) {
	st := in.(*runState)
	verifiedCount := 0
	for _, v := range st.verifications {
		if v.Verdict != "" && v.Verdict != store.VerdictUncertain {
			verifiedCount++
		}
	}
	if verifiedCount < 2 {
		return st, nil
	}

	var b strings.Builder
	for _, v := range st.verifications {
		fmt.Fprintf(&b, "- claim: %s | verdict: %s | answer: %s\n", v.Claim.Text, v.Verdict, v.Answer)
	}

	out, err := p.callStructured(ctx,
		"Given these claim/verdict/answer triples, list any contradictions, "+
			"inconsistencies, or factual drift against the original answer below. "+
			"Return an empty list if none are found.",
		fmt.Sprintf("Original answer: %s\n\nTriples:\n%s", st.answer, b.String()),
		chat.JSONParserAsAnyOf[InconsistencyResult]())
	if err != nil {
		return nil, fmt.Errorf("inconsistency: %w", err)
	}
	st.inconsistencies = out.(InconsistencyResult).Inconsistencies
	return st, nil
}

func (p *Pipeline) evaluatePhase(ctx context.Context, in any) (any, error) {
	st := in.(*runState)

	var b strings.Builder
	for _, v := range st.verifications {
		fmt.Fprintf(&b, "- %s -> %s\n", v.Claim.Text, v.Verdict)
	}
	for _, inc := range st.inconsistencies {
		fmt.Fprintf(&b, "inconsistency: %s\n", inc)
	}

	out, err := p.callStructured(ctx,
		"Score the answer on accuracy, completeness, relevance, coherence, and "+
			"fairness (each 0 to 1), plus a bias_amount criterion where 0 is best. "+
			"Compute an overall weighted score, a correct? boolean (false if any "+
			"high-severity issue exists), an issues list, and a short summary.",
		fmt.Sprintf("Answer: %s\n\nVerification summary:\n%s", st.answer, b.String()),
		chat.JSONParserAsAnyOf[Evaluation]())
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	eval := out.(Evaluation)
	if eval.HighSeverity() {
		eval.Correct = false
	}
	st.eval = eval
	st.scores = append(st.scores, eval.Overall)
	return st, nil
}

func (p *Pipeline) revisePhase(ctx context.Context, in any) (any, error) {
	st := in.(*runState)
	if st.eval.Correct {
		return st, nil
	}

	var issues strings.Builder
	for _, i := range st.eval.Issues {
		fmt.Fprintf(&issues, "- [%s] %s\n", i.Severity, i.Description)
	}
	for _, inc := range st.inconsistencies {
		fmt.Fprintf(&issues, "- inconsistency: %s\n", inc)
	}

	out, err := p.callStructured(ctx,
		"Revise the answer to address the issues and inconsistencies below. "+
			"Preserve any content already verified as correct; only change what "+
			"needs to change.",
		fmt.Sprintf("Current answer: %s\n\nIssues:\n%s", st.answer, issues.String()),
		chat.JSONParserAsAnyOf[ReviseResult]())
	if err != nil {
		return nil, fmt.Errorf("revise: %w", err)
	}
	st.answer = out.(ReviseResult).Answer
	st.iteration++

	return p.evaluatePhase(ctx, st)
}

// gradientOf computes the delta/trend summary over the last windowSize
// scores (spec.md §4.6 "gradient summary").
func gradientOf(scores []float64, windowSize int) Gradient {
	if len(scores) == 0 {
		return Gradient{Trend: TrendStable}
	}

	window := scores
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}

	deltas := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		deltas = append(deltas, window[i]-window[i-1])
	}

	total := window[len(window)-1] - window[0]
	trend := TrendStable
	switch {
	case total > 0.01:
		trend = TrendImproving
	case total < -0.01:
		trend = TrendDeclining
	}

	return Gradient{
		Deltas:      deltas,
		Trend:       trend,
		TotalDelta:  total,
		ScoreWindow: window,
	}
}
