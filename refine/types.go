// Package refine implements the optional post-processing pipeline that
// decomposes a query answer into claims, verifies each independently,
// checks for cross-claim inconsistencies, scores the answer, and revises
// it in a bounded loop. It is built as a github.com/Tangerg/lynx/flow
// graph: linear phases chained with Then, per-claim verification fanned
// out with Parallel, and the revise step wrapped in a Loop whose
// Terminator encodes the stopping policy.
package refine

import (
	"time"

	"github.com/rlmkit/rlm/store"
)

// ClaimCategory classifies one atomic claim extracted from an answer.
type ClaimCategory string

const (
	CategoryFactual    ClaimCategory = "factual"
	CategoryInference  ClaimCategory = "inference"
	CategorySubjective ClaimCategory = "subjective"
)

// Claim is one atomic assertion pulled out of the answer under refinement.
type Claim struct {
	Text       string        `json:"text"`
	Category   ClaimCategory `json:"category"`
	Confidence float64       `json:"confidence"`
	Verifiable bool          `json:"verifiable"`
}

// DecomposeResult is the structured output of the decompose phase.
type DecomposeResult struct {
	Claims []Claim `json:"claims"`
}

// verificationQuestion pairs a claim with a standalone question the
// per-claim verify phase can answer without seeing the other claims.
type verificationQuestion struct {
	Claim    Claim
	Question string
}

// PlanResult is the structured output of the plan-verification phase: one
// question per claim, in claim order, empty for a claim that is not
// verifiable.
type PlanResult struct {
	Questions []string `json:"questions"`
}

// Verification is the independently produced answer and verdict for one
// claim, factored so each LLM call sees only its own claim and question.
type Verification struct {
	Claim      Claim                      `json:"claim"`
	Question   string                     `json:"question,omitempty"`
	Answer     string                     `json:"answer,omitempty"`
	Verdict    store.VerificationVerdict  `json:"verdict"`
	Correction string                     `json:"correction,omitempty"`
	Source     string                     `json:"source,omitempty"`
}

// VerifyResult is the structured output of a single factored verify call.
type VerifyResult struct {
	Answer     string `json:"answer"`
	Verdict    string `json:"verdict"`
	Correction string `json:"correction,omitempty"`
	Source     string `json:"source,omitempty"`
}

// InconsistencyResult is the structured output of the inconsistency phase.
type InconsistencyResult struct {
	Inconsistencies []string `json:"inconsistencies"`
}

// Issue is one concrete problem the evaluate phase flagged, with a
// severity that feeds the correct? boolean.
type Issue struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Evaluation is the structured output of the evaluate phase: a weighted
// score across five criteria plus an inverse bias criterion.
type Evaluation struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Coherence    float64 `json:"coherence"`
	Fairness     float64 `json:"fairness"`
	BiasAmount   float64 `json:"bias_amount"`
	Overall      float64 `json:"overall"`
	Correct      bool    `json:"correct"`
	Issues       []Issue `json:"issues"`
	Summary      string  `json:"summary"`
}

// HighSeverity reports whether any issue is severe enough to force
// Correct to false regardless of the raw score.
func (e Evaluation) HighSeverity() bool {
	for _, i := range e.Issues {
		if i.Severity == "high" {
			return true
		}
	}
	return false
}

// ReviseResult is the structured output of the revise phase: an improved
// answer incorporating verifications, inconsistencies, and issues.
type ReviseResult struct {
	Answer string `json:"answer"`
}

// Trend classifies the direction of the score gradient across iterations.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Gradient summarizes how the evaluation score moved across refinement
// iterations: per-step deltas, overall trend, total delta, and a sliding
// window of the most recent scores.
type Gradient struct {
	Deltas      []float64 `json:"deltas"`
	Trend       Trend     `json:"trend"`
	TotalDelta  float64   `json:"total_delta"`
	ScoreWindow []float64 `json:"score_window"`
}

// StoppingPolicy chooses how the revise Loop decides to stop.
type StoppingPolicy string

const (
	PolicyThreshold StoppingPolicy = "threshold"
	PolicyFixed     StoppingPolicy = "fixed"
	PolicyBoth      StoppingPolicy = "both"
)

// DefaultMaxIterations and DefaultScoreThreshold are spec.md §4.6's stated
// default stopping parameters.
const (
	DefaultMaxIterations  = 3
	DefaultScoreThreshold = 0.9
	DefaultScoreWindow    = 5
	// SourceExcerptByteCap bounds how many bytes of source-document text
	// are shared across all excerpts handed to one factored verify call,
	// per §4.6 "truncated to a fixed byte cap with per-document fair
	// sharing".
	SourceExcerptByteCap = 4000
)

// SourceExcerpt is one document's worth of context text made available to
// verification when the caller supplies source documents (forces citation
// requests per §4.6's last paragraph).
type SourceExcerpt struct {
	DocumentID string
	Text       string
}

// Options configures one Pipeline.Run call.
type Options struct {
	MaxIterations  int
	ScoreThreshold float64
	Policy         StoppingPolicy
	ScoreWindow    int
	Concurrency    int
	SourceDocs     []SourceExcerpt
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = DefaultScoreThreshold
	}
	if o.Policy == "" {
		o.Policy = PolicyBoth
	}
	if o.ScoreWindow <= 0 {
		o.ScoreWindow = DefaultScoreWindow
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Input is the answer under refinement plus the query that produced it.
type Input struct {
	Query  string
	Answer string
}

// Result is the full output of one refinement run.
type Result struct {
	FinalAnswer     string         `json:"final_answer"`
	Claims          []Claim        `json:"claims"`
	Verifications   []Verification `json:"verifications"`
	Inconsistencies []string       `json:"inconsistencies,omitempty"`
	Evaluation      Evaluation     `json:"evaluation"`
	Gradient        Gradient       `json:"gradient"`
	Iterations      int            `json:"iterations"`
	Timestamp       time.Time      `json:"timestamp"`
}
