// Package env implements the Environment Facade (spec.md §4.8): the single
// entry point bundling a store, a sandbox tool catalog, the prompt builder,
// the iteration engine, and the optional refinement and ingestion
// pipelines into the five operations external callers use — create-env,
// register-fn!/register-def!, ingest!, query!, dispose!.
package env

import (
	"time"

	pkgassert "github.com/Tangerg/lynx/pkg/assert"

	"github.com/rlmkit/rlm/engine"
	"github.com/rlmkit/rlm/ingest"
	"github.com/rlmkit/rlm/refine"
)

// Config is the plain value struct create-env accepts (spec.md §6: "the
// environment accepts all configuration as a plain value"). It follows
// model/chat/client.go's ClientConfig idiom: a fluent With... builder,
// immutable by convention, Clone()'d before any mutation.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string

	// PersistentDir, if set, makes CreateEnv build a persistent store at
	// this directory instead of a disposable one.
	PersistentDir string

	MaxIterations     int
	MaxRecursionDepth int
	SandboxTimeout    time.Duration
}

// DefaultMaxRecursionDepth is spec.md §4.5's recursion cap: llm-query/
// rlm-query called at this depth return the fixed recursion-error value
// without invoking the transport.
const DefaultMaxRecursionDepth = 5

func (c Config) withDefaults() Config {
	if c.MaxRecursionDepth <= 0 {
		c.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	return c
}

// Clone returns a copy of c, the same fluent-builder-over-a-value-type
// pattern model/chat/client.go's ClientConfig.Clone uses.
func (c Config) Clone() Config { return c }

// WithAPIKey sets the provider credential forwarded to the Transport.
func (c Config) WithAPIKey(key string) Config { c.APIKey = key; return c }

// WithBaseURL sets the provider endpoint.
func (c Config) WithBaseURL(url string) Config { c.BaseURL = url; return c }

// WithDefaultModel sets the model query! falls back to when a call omits
// {model?}.
func (c Config) WithDefaultModel(model string) Config { c.DefaultModel = model; return c }

// WithPersistentDir makes CreateEnv build a persistent store rooted here.
func (c Config) WithPersistentDir(dir string) Config { c.PersistentDir = dir; return c }

// WithMaxIterations sets the default per-query iteration cap (engine's
// spec default of 50 applies when this is left zero).
func (c Config) WithMaxIterations(n int) Config { c.MaxIterations = n; return c }

// WithMaxRecursionDepth overrides DefaultMaxRecursionDepth.
func (c Config) WithMaxRecursionDepth(n int) Config { c.MaxRecursionDepth = n; return c }

// WithSandboxTimeout overrides sandbox.DefaultTimeout for every query run
// against this environment.
func (c Config) WithSandboxTimeout(d time.Duration) Config { c.SandboxTimeout = d; return c }

// validate panics (via pkg/assert) on a missing required field, exactly as
// tool.DefinitionBuilder.MustBuild panics on a missing name — construction-
// time programmer error, not a runtime fault.
func (c Config) validate() {
	pkgassert.Assert(c.APIKey != "", "env: config: api-key is required")
	pkgassert.Assert(c.BaseURL != "", "env: config: base-url is required")
	pkgassert.Assert(c.DefaultModel != "", "env: config: default-model is required")
}

// QueryOptions configures one Query call (spec.md §6's query! options
// table).
type QueryOptions struct {
	Context           string
	Spec              string
	Model             string
	MaxIterations     int
	MaxRefinements    int
	MinScore          float64
	Refine            bool
	Learn             bool
	MaxContextTokens  int
	MaxRecursionDepth int
	VerifyClaims      bool
	Plan              string
	Debug             bool

	// SourceDocs, if Refine is set, is forwarded to the refinement
	// pipeline so per-claim verification can cite source
	// excerpts instead of relying on the model's own recollection.
	SourceDocs []refine.SourceExcerpt
}

// QueryResult is query!'s full result map (spec.md §4.8).
type QueryResult struct {
	Answer          any                   `json:"answer"`
	RawAnswer       string                `json:"raw_answer"`
	Trace           *engine.Trace         `json:"trace"`
	Iterations      int                   `json:"iterations"`
	DurationMs      int64                 `json:"duration_ms"`
	EvalScores      *refine.Evaluation    `json:"eval_scores,omitempty"`
	RefinementCount int                   `json:"refinement_count,omitempty"`
	HistoryTokens   int                   `json:"history_tokens"`
	VerifiedClaims  []refine.Verification `json:"verified_claims,omitempty"`
	Status          string                `json:"status,omitempty"`
}

// IngestOptions configures one Ingest call (spec.md §6's ingest! options
// table), a thin passthrough to ingest.Options.
type IngestOptions = ingest.Options
