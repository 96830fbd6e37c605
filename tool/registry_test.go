package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/sandbox"
)

func echoTool(name string) Tool {
	return NewFuncTool(
		NewDefinitionBuilder().WithName(name).WithAutoDescription().MustBuild(),
		func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
			return argAt(args, 0), nil
		},
	)
}

func TestRegistryRegisterAndFind(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("weather"))

	found, ok := r.Find("weather")
	require.True(t, ok)
	require.Equal(t, "weather", found.Definition().Name())
	require.True(t, r.Exists("weather"))
	require.Equal(t, 1, r.Size())
}

func TestRegistryRegisterSkipsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	first := echoTool("weather")
	second := echoTool("weather")
	r.Register(first).Register(second)

	found, _ := r.Find("weather")
	require.Same(t, first, found)
	require.Equal(t, 1, r.Size())
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("weather"))
	r.Unregister("weather")
	require.False(t, r.Exists("weather"))
}

func TestRegistryNamesAndAll(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("a"), echoTool("b"))
	require.ElementsMatch(t, []string{"a", "b"}, r.Names())
	require.Len(t, r.All(), 2)
}
