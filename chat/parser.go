package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkgjson "github.com/Tangerg/lynx/pkg/json"
)

// StructuredParser converts unstructured LLM output into structured data of
// type T. Instructions() supplies the formatting rules a prompt should
// include; Parse() turns a raw response back into T, tolerating the
// markdown fencing and stray commentary models commonly wrap around
// otherwise-valid output.
type StructuredParser[T any] interface {
	Instructions() string
	Parse(rawLLMOutput string) (T, error)
}

// stripMarkdownCodeBlock removes a wrapping ```lang / ``` fence, if present.
func stripMarkdownCodeBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < 6 {
		return trimmed
	}
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}

	newlineIdx := strings.Index(trimmed, "\n")
	if newlineIdx == -1 {
		return strings.TrimSpace(trimmed[3 : len(trimmed)-3])
	}
	return strings.TrimSpace(trimmed[newlineIdx+1 : len(trimmed)-3])
}

var _ StructuredParser[[]string] = (*ListParser)(nil)

// ListParser parses a comma-separated line into a slice of strings.
type ListParser struct{}

func NewListParser() *ListParser { return &ListParser{} }

func (l *ListParser) Instructions() string {
	return `[OUTPUT FORMAT]
Comma-separated list only

[RESTRICTIONS]
• No explanations or commentary
• No numbering or bullet points
• No quotes around individual items
• No leading or trailing text

[EXPECTED FORMAT]
item1, item2, item3, etc...`
}

func (l *ListParser) Parse(rawLLMOutput string) ([]string, error) {
	values := strings.Split(rawLLMOutput, ",")
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values, nil
}

var _ StructuredParser[map[string]any] = (*MapParser)(nil)

// MapParser parses a JSON object into a map[string]any.
type MapParser struct{}

func NewMapParser() *MapParser { return &MapParser{} }

func (m *MapParser) Instructions() string {
	return `[OUTPUT FORMAT]
JSON object only - RFC8259 compliant

[RESTRICTIONS]
• No explanations or commentary
• No markdown formatting or code blocks
• No backticks or ` + "```json```" + ` wrappers
• Must be a valid JSON object (key-value pairs)

[EXPECTED STRUCTURE]
{
  "key1": "value1",
  "key2": 123,
  "key3": true
}`
}

func (m *MapParser) Parse(rawLLMOutput string) (map[string]any, error) {
	clean := stripMarkdownCodeBlock(rawLLMOutput)
	result := make(map[string]any)
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to parse JSON content: %s (original input: %s)", clean, rawLLMOutput))
	}
	return result, nil
}

var _ StructuredParser[any] = (*JSONParser[any])(nil)

// JSONParser is a generic StructuredParser that parses JSON into T, deriving
// its formatting instructions from T's JSON Schema.
type JSONParser[T any] struct {
	cachedInstructions string
}

func NewJSONParser[T any]() *JSONParser[T] {
	j := &JSONParser[T]{}
	j.cachedInstructions = j.generateInstructions()
	return j
}

func (j *JSONParser[T]) generateInstructions() string {
	const template = `[OUTPUT FORMAT]
JSON only - RFC8259 compliant

[RESTRICTIONS]
• No explanations or commentary
• No markdown formatting or code blocks
• No backticks or ` + "```json```" + ` wrappers
• Exact schema compliance required

[JSON SCHEMA]
%s

[EXPECTED OUTPUT]
Raw JSON object matching the schema above.`
	var instance T
	return fmt.Sprintf(template, pkgjson.MustStringDefSchemaOf(instance))
}

func (j *JSONParser[T]) Instructions() string {
	return j.cachedInstructions
}

func (j *JSONParser[T]) Parse(rawLLMOutput string) (T, error) {
	clean := stripMarkdownCodeBlock(rawLLMOutput)
	var result T
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return result, errors.Join(err, fmt.Errorf("failed to parse JSON content to type %T: %s (original input: %s)", result, clean, rawLLMOutput))
	}
	return result, nil
}

var _ StructuredParser[any] = (*AnyParser)(nil)

// AnyParser erases a StructuredParser[T] down to StructuredParser[any] so
// parsers of different result types can sit in one collection.
type AnyParser struct {
	FormatInstructions string
	ParseFunction      func(rawLLMOutput string) (any, error)
}

func (parser *AnyParser) Instructions() string {
	return parser.FormatInstructions
}

func (parser *AnyParser) Parse(rawLLMOutput string) (any, error) {
	if parser.ParseFunction == nil {
		return nil, errors.New("parse function cannot be nil")
	}
	return parser.ParseFunction(rawLLMOutput)
}

func ParserAsAny[T any](original StructuredParser[T]) *AnyParser {
	return &AnyParser{
		FormatInstructions: original.Instructions(),
		ParseFunction: func(rawLLMOutput string) (any, error) {
			return original.Parse(rawLLMOutput)
		},
	}
}

func ListParserAsAny() *AnyParser { return ParserAsAny(NewListParser()) }
func MapParserAsAny() *AnyParser  { return ParserAsAny(NewMapParser()) }

func JSONParserAsAnyOf[T any]() *AnyParser {
	return ParserAsAny(NewJSONParser[T]())
}
