// Package tool implements the sandbox-facing tool catalog described in
// spec.md §4.3: an immutable Definition/Registry pair for naming and
// documenting callables, a Dispatcher that satisfies sandbox.ToolInvoker,
// and the concrete core tools bound over the store.
package tool

import (
	"errors"
	"strings"

	pkgString "github.com/Tangerg/lynx/pkg/strings"
)

// Definition is the immutable name/description pair the Prompt Builder
// splices into the system prompt's tool catalog. Unlike the chat-completion
// tools this is grounded on, a sandbox tool has no JSON input schema to
// advertise — argument shape is conveyed entirely by the description, since
// the LLM writes a direct function-call expression rather than a
// structured tool-call payload.
type Definition struct {
	name        string
	description string
}

// Name returns the symbol the LLM invokes this tool by inside a snippet.
func (d *Definition) Name() string { return d.name }

// Description returns the human-readable explanation spliced into the
// prompt's tool catalog.
func (d *Definition) Description() string { return d.description }

// DefinitionBuilder builds an immutable Definition.
type DefinitionBuilder struct {
	name            string
	description     string
	autoDescription bool
}

// NewDefinitionBuilder starts a fluent Definition build.
func NewDefinitionBuilder() *DefinitionBuilder {
	return &DefinitionBuilder{}
}

// WithName sets the binding's symbol if non-empty.
func (b *DefinitionBuilder) WithName(name string) *DefinitionBuilder {
	if name != "" {
		b.name = name
	}
	return b
}

// WithDescription sets an explicit description if non-empty.
func (b *DefinitionBuilder) WithDescription(desc string) *DefinitionBuilder {
	if desc != "" {
		b.description = desc
	}
	return b
}

// WithAutoDescription generates a description from the name when none is
// given explicitly, following the same camelCase/kebab-case humanization
// the chat-completion tool catalog uses.
func (b *DefinitionBuilder) WithAutoDescription() *DefinitionBuilder {
	b.autoDescription = true
	return b
}

func (b *DefinitionBuilder) validate() error {
	if b.name == "" {
		return errors.New("tool: name is required")
	}
	if b.description == "" && b.autoDescription {
		b.description = b.genDescription()
	}
	return nil
}

// genDescription humanizes a kebab-case or camelCase tool name into a
// trailing-"tool" description, e.g. "search-page-nodes" -> "search page
// nodes tool".
func (b *DefinitionBuilder) genDescription() string {
	if b.name == "" {
		return "tool"
	}
	normalized := strings.ReplaceAll(b.name, "-", " ")
	desc := pkgString.AsCamelCase(strings.ReplaceAll(normalized, " ", "_")).ToSnakeCase().String()
	desc = strings.ReplaceAll(desc, "_", " ")
	desc = strings.TrimSpace(desc)
	desc = strings.TrimPrefix(desc, "tool ")
	desc = strings.TrimSuffix(desc, " tool")
	if desc == "" {
		return "tool"
	}
	return desc + " tool"
}

// Build validates and returns the immutable Definition.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &Definition{name: b.name, description: b.description}, nil
}

// MustBuild panics on validation failure; used for the fixed catalog of
// core tools, where a missing name is a programming error, not user input.
func (b *DefinitionBuilder) MustBuild() *Definition {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
