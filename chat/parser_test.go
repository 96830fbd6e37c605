package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"fenced json", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"plain fence", "```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"single line fence", "```{\"a\":1}```", "{\"a\":1}"},
		{"no fence", "{\"a\":1}", "{\"a\":1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripMarkdownCodeBlock(tt.input))
		})
	}
}

func TestListParserSplitsAndTrims(t *testing.T) {
	values, err := NewListParser().Parse(" one, two ,three")
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, values)
}

func TestMapParserParsesFencedJSON(t *testing.T) {
	m, err := NewMapParser().Parse("```json\n{\"k\": 1}\n```")
	require.NoError(t, err)
	require.Equal(t, float64(1), m["k"])
}

func TestMapParserErrorsOnInvalidJSON(t *testing.T) {
	_, err := NewMapParser().Parse("not json")
	require.Error(t, err)
}

type parserFixture struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestJSONParserRoundTrip(t *testing.T) {
	p := NewJSONParser[parserFixture]()
	require.Contains(t, p.Instructions(), "JSON SCHEMA")

	got, err := p.Parse("```json\n{\"name\": \"ada\", \"age\": 30}\n```")
	require.NoError(t, err)
	require.Equal(t, parserFixture{Name: "ada", Age: 30}, got)
}

func TestJSONParserAsAnyOf(t *testing.T) {
	p := JSONParserAsAnyOf[parserFixture]()
	got, err := p.Parse(`{"name": "lin", "age": 5}`)
	require.NoError(t, err)
	require.Equal(t, parserFixture{Name: "lin", Age: 5}, got)
}

func TestAnyParserErrorsWithoutFunction(t *testing.T) {
	p := &AnyParser{FormatInstructions: "x"}
	_, err := p.Parse("anything")
	require.Error(t, err)
}
