package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/sandbox"
)

func TestDispatcherInvokesRegisteredTool(t *testing.T) {
	core := NewRegistry()
	core.Register(echoTool("echo"))
	d := NewDispatcher(core, nil)

	v, err := d.Invoke(context.Background(), "echo", []sandbox.Value{sandbox.Str("hi")})
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("hi"), v)
}

func TestDispatcherCorePrecedesUser(t *testing.T) {
	core := NewRegistry()
	core.Register(NewFuncTool(
		NewDefinitionBuilder().WithName("shadowed").WithAutoDescription().MustBuild(),
		func(_ context.Context, _ []sandbox.Value) (sandbox.Value, error) { return sandbox.Str("core"), nil },
	))
	user := NewRegistry()
	user.Register(NewFuncTool(
		NewDefinitionBuilder().WithName("shadowed").WithAutoDescription().MustBuild(),
		func(_ context.Context, _ []sandbox.Value) (sandbox.Value, error) { return sandbox.Str("user"), nil },
	))
	d := NewDispatcher(core, user)

	v, err := d.Invoke(context.Background(), "shadowed", nil)
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("core"), v)
}

func TestDispatcherUnknownToolErrors(t *testing.T) {
	d := NewDispatcher(NewRegistry(), NewRegistry())
	_, err := d.Invoke(context.Background(), "nope", nil)
	require.ErrorAs(t, err, &ErrUnknownTool{})
}
