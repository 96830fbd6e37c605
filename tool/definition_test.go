package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefinitionBuilderRequiresName(t *testing.T) {
	_, err := NewDefinitionBuilder().Build()
	require.Error(t, err)
}

func TestDefinitionBuilderAutoDescription(t *testing.T) {
	d := NewDefinitionBuilder().WithName("search-page-nodes").WithAutoDescription().MustBuild()
	require.Equal(t, "search-page-nodes", d.Name())
	require.Equal(t, "search page nodes tool", d.Description())
}

func TestDefinitionBuilderExplicitDescriptionWins(t *testing.T) {
	d := NewDefinitionBuilder().
		WithName("FINAL").
		WithAutoDescription().
		WithDescription("terminate the iteration loop with a final answer").
		MustBuild()
	require.Equal(t, "terminate the iteration loop with a final answer", d.Description())
}
