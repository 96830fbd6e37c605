package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// blockingInvoker's tool blocks until its context is cancelled, so the
// snippet can only finish through Execute's deadline (spec.md §4.2, §5
// "Timeout" testable property).
type blockingInvoker struct {
	started chan struct{}
}

func (b *blockingInvoker) Invoke(ctx context.Context, name string, args []Value) (Value, error) {
	close(b.started)
	<-ctx.Done()
	return Nil, ctx.Err()
}

func TestExecuteTimesOutAndMarksResult(t *testing.T) {
	inv := &blockingInvoker{started: make(chan struct{})}
	ex := NewExecutor(DefaultAllowList(), inv, nil, 20*time.Millisecond)

	result := ex.Execute(context.Background(), "(spin)")
	require.True(t, result.TimedOut)
	require.Equal(t, "Timeout", result.Error)
}

func TestExecuteImmediateValue(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	result := ex.Execute(context.Background(), "(+ 1 2)")
	require.Empty(t, result.Error)
	require.False(t, result.TimedOut)
	require.Equal(t, int64(3), result.Value)
}

func TestExecuteSurfacesEvaluationErrorsWithoutCrashing(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	result := ex.Execute(context.Background(), "(mod 5 0)")
	require.Equal(t, "sandbox: modulo by zero", result.Error)
	require.False(t, result.TimedOut)
}

func TestExecuteGetOnNonCollectionReturnsNil(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	// get on a non-collection degrades gracefully: it yields nil (the
	// default) without an error and without panicking.
	result := ex.Execute(context.Background(), `(get "not-a-collection" 0)`)
	require.Empty(t, result.Error)
	require.False(t, result.TimedOut)
}
