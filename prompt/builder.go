// Package prompt renders the system prompt handed to the LLM transport at
// the start of a query: the bound tool catalog, an optional output schema,
// a bounded set of few-shot examples, the canonical workflow block, and the
// response-format contract.
package prompt

import (
	"sort"
	"strings"

	pkgtext "github.com/Tangerg/lynx/pkg/text"

	"github.com/rlmkit/rlm/examplecatalog"
	"github.com/rlmkit/rlm/tool"
)

// MaxExamplesPerKind bounds how many good/bad examples are spliced in,
// per spec.md §4.4 ("≤ 3 each, default").
const MaxExamplesPerKind = 3

// Options configures a single Render call.
type Options struct {
	// OutputSchemaInstructions, when non-empty, is spliced verbatim — the
	// caller derives it from a chat.StructuredParser[T].Instructions() call,
	// keeping prompt free of a direct dependency on the chat package's
	// generic parser types.
	OutputSchemaInstructions string
	// Examples supplies the few-shot catalog; nil disables the examples
	// section entirely.
	Examples *examplecatalog.Catalog
	// HistoryEnabled controls whether the workflow block mentions prior
	// conversation context as an available signal.
	HistoryEnabled bool
	// CustomDocs are caller-supplied documentation snippets appended after
	// the tool catalog, e.g. domain notes registered alongside a custom
	// tool or binding.
	CustomDocs []string
}

const promptTemplate = `You are a Recursive Language Model agent. You answer queries by writing and
executing code snippets against a small, sandboxed evaluator backed by a
document store.

[AVAILABLE TOOLS]
{{.ToolCatalog}}
{{if .CustomDocs}}
[ADDITIONAL NOTES]
{{.CustomDocs}}
{{end}}{{if .OutputSchema}}
[OUTPUT SCHEMA]
{{.OutputSchema}}
{{end}}{{if .Examples}}
[EXAMPLES]
{{.Examples}}
{{end}}
[WORKFLOW]
1. Check context: review what has already been learned (list-locals, stats).
2. List documents available in the store.
3. Browse each relevant document's table of contents.
4. Fetch and read the page nodes that look relevant.
5. Analyze: synthesize what was read, search or fetch more if needed.
6. Call FINAL (or FINAL-VAR) once you have a complete answer.
{{if .HistoryEnabled}}Prior conversation turns are available as context for this workflow.
{{end}}
[RESPONSE FORMAT]
Each turn, respond with a structured record containing:
  - thinking: free-text reasoning about what to do next
  - code: an ordered list of code snippets to execute, in the sandbox's
    expression syntax

If structured parsing of your response fails, the engine falls back to
extracting fenced code blocks from the raw text and treating everything
else as thinking — but do not rely on that fallback.`

// Builder renders system prompts from a bound tool catalog and Options.
type Builder struct{}

// NewBuilder constructs a Builder. Builder carries no state; Render derives
// everything from its arguments.
func NewBuilder() *Builder {
	return &Builder{}
}

// Render produces the system prompt string for catalog (the tools currently
// bound in an environment) and opts.
func (b *Builder) Render(catalog []*tool.Definition, opts Options) (string, error) {
	renderer := pkgtext.NewRenderer().
		WithTemplate(promptTemplate).
		WithVariables(map[string]any{
			"ToolCatalog":    renderToolCatalog(catalog),
			"CustomDocs":     renderCustomDocs(opts.CustomDocs),
			"OutputSchema":   strings.TrimSpace(opts.OutputSchemaInstructions),
			"Examples":       renderExamples(opts.Examples),
			"HistoryEnabled": opts.HistoryEnabled,
		})
	return renderer.Render()
}

// MustRender panics if Render errors, for callers that construct the
// template from compile-time-fixed option shapes.
func (b *Builder) MustRender(catalog []*tool.Definition, opts Options) string {
	out, err := b.Render(catalog, opts)
	if err != nil {
		panic(err)
	}
	return out
}

func renderToolCatalog(catalog []*tool.Definition) string {
	sorted := make([]*tool.Definition, len(catalog))
	copy(sorted, catalog)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	var b strings.Builder
	for i, d := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(d.Name())
		b.WriteString(": ")
		b.WriteString(d.Description())
	}
	return b.String()
}

func renderCustomDocs(docs []string) string {
	return strings.Join(docs, "\n")
}

func renderExamples(cat *examplecatalog.Catalog) string {
	if cat == nil {
		return ""
	}

	var b strings.Builder
	good := cat.Good(MaxExamplesPerKind)
	bad := cat.Bad(MaxExamplesPerKind)

	for i, ex := range good {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Good example:\nQuery: ")
		b.WriteString(ex.Query)
		b.WriteString("\nAnswer: ")
		b.WriteString(ex.Answer)
	}
	for _, ex := range bad {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Avoid this pattern:\nQuery: ")
		b.WriteString(ex.Query)
		b.WriteString("\nAnswer: ")
		b.WriteString(ex.Answer)
		if ex.Feedback != "" {
			b.WriteString("\nWhy it fell short: ")
			b.WriteString(ex.Feedback)
		}
	}
	return b.String()
}
