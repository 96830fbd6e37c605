package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/chat"
	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
	"github.com/rlmkit/rlm/tool"
)

// invokerRef breaks the construction cycle between an Executor (which needs
// a ToolInvoker up front) and CoreTools (which needs the same Executor as a
// LocalsProvider): build the Executor against a forwarding stub, build the
// tools and Dispatcher against the Executor, then point the stub at the
// finished Dispatcher.
type invokerRef struct {
	d *tool.Dispatcher
}

func (r *invokerRef) Invoke(ctx context.Context, name string, args []sandbox.Value) (sandbox.Value, error) {
	return r.d.Invoke(ctx, name, args)
}

type noRecursion struct{}

func (noRecursion) LLMQuery(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("recursion not available in this test")
}
func (noRecursion) RLMQuery(context.Context, string, string, string, int) (any, error) {
	return nil, fmt.Errorf("recursion not available in this test")
}

func newTestExecutor(t *testing.T) *sandbox.Executor {
	t.Helper()
	st, err := store.NewDisposable()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Dispose() })

	ref := &invokerRef{}
	ex := sandbox.NewExecutor(sandbox.DefaultAllowList(), ref, nil, sandbox.DefaultTimeout)

	tools := tool.CoreTools(st, ex, noRecursion{})
	core := tool.NewRegistry().Register(tools...)
	ref.d = tool.NewDispatcher(core, nil)
	return ex
}

// scriptedTransport replays one canned response per call, in order.
type scriptedTransport struct {
	responses []string
	calls     int
}

func (s *scriptedTransport) Call(ctx context.Context, req chat.Request) (chat.Response, error) {
	if s.calls >= len(s.responses) {
		return chat.Response{}, fmt.Errorf("scriptedTransport: no more responses (called %d times)", s.calls+1)
	}
	content := s.responses[s.calls]
	s.calls++
	return chat.Response{Message: chat.Message{Role: chat.RoleAssistant, Content: content}}, nil
}

func agentJSON(thinking string, code ...string) string {
	quoted := make([]string, len(code))
	for i, c := range code {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	codeList := "["
	for i, q := range quoted {
		if i > 0 {
			codeList += ","
		}
		codeList += q
	}
	codeList += "]"
	return fmt.Sprintf(`{"thinking": %q, "code": %s}`, thinking, codeList)
}

func TestRunTerminatesOnResultPathFinal(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		agentJSON("answering directly", `(FINAL 42)`),
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "what is the answer?", SystemPrompt: "sys"})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, out.Status)
	require.Equal(t, int64(42), out.Answer)
	require.Equal(t, 1, out.Iterations)
	require.Len(t, out.Trace.Iterations, 1)
	require.True(t, out.Trace.Iterations[0].Final)
}

func TestRunTerminatesOnStdoutPathFinal(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		agentJSON("printing the final record", `(println (FINAL "done"))`),
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "finish up", SystemPrompt: "sys"})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, out.Status)
	require.Equal(t, "done", out.Answer)
}

func TestRunFeedsBackErrorsAndContinues(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		agentJSON("trying a bad snippet", `(mod 1 0)`),
		agentJSON("recovering", `(FINAL "recovered")`),
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "q", SystemPrompt: "sys"})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, out.Status)
	require.Equal(t, "recovered", out.Answer)
	require.Equal(t, 2, out.Iterations)
	require.Contains(t, out.Trace.Iterations[0].Executions[0].Error, "modulo by zero")
	// the feedback message embedding the error must have been appended
	// before the second transport call was made.
	require.Contains(t, out.Messages[3].Content, "modulo by zero")
}

func TestRunHintsOnBareCallableResult(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		agentJSON("forgot to call it", `stats`),
		agentJSON("calling it properly", `(FINAL (stats))`),
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "q", SystemPrompt: "sys"})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, out.Status)
	require.Contains(t, out.Messages[3].Content, "did you mean to invoke it")
}

func TestRunReturnsMaxIterationsWithLastUsefulLocal(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		agentJSON("defining something", `(def x 7)`),
		agentJSON("never finishing", `(def y 8)`),
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "q", SystemPrompt: "sys", MaxIterations: 2})
	require.NoError(t, err)
	require.Equal(t, StatusMaxIterations, out.Status)
	require.Equal(t, int64(8), out.LastUsefulLocal)
	require.Equal(t, 2, out.Iterations)
}

func TestRunFallsBackToFencedCodeOnParseFailure(t *testing.T) {
	ex := newTestExecutor(t)
	transport := &scriptedTransport{responses: []string{
		"not json, just reasoning with a snippet:\n```\n(FINAL \"fenced\")\n```\n",
	}}
	e, err := New(transport, Config{})
	require.NoError(t, err)

	out, err := e.Run(context.Background(), ex, Input{Query: "q", SystemPrompt: "sys"})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, out.Status)
	require.Equal(t, "fenced", out.Answer)
}
