package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
)

type fakeLocals struct{ m map[string]sandbox.Value }

func (f fakeLocals) Locals() map[string]sandbox.Value { return f.m }

type fakeRecursor struct {
	llmAnswer string
	rlmAnswer any
}

func (f fakeRecursor) LLMQuery(_ context.Context, _ string, _ string) (string, error) {
	return f.llmAnswer, nil
}
func (f fakeRecursor) RLMQuery(_ context.Context, _ string, _ string, _ string, _ int) (any, error) {
	return f.rlmAnswer, nil
}

func findTool(t *testing.T, tools []Tool, name string) Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Definition().Name() == name {
			return tl
		}
	}
	t.Fatalf("tool %q not registered", name)
	return nil
}

func newTestCoreTools(t *testing.T) ([]Tool, *store.Store) {
	t.Helper()
	st, err := store.NewDisposable()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Dispose() })
	return CoreTools(st, nil, nil), st
}

func TestInsertAndGetDocument(t *testing.T) {
	tools, _ := newTestCoreTools(t)
	insert := findTool(t, tools, "insert-document")
	get := findTool(t, tools, "get-document")

	result, err := insert.Call(context.Background(), []sandbox.Value{
		sandbox.Map(map[string]sandbox.Value{"id": sandbox.Str("doc-1"), "name": sandbox.Str("report.pdf")}),
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("doc-1"), result.Map["id"])

	fetched, err := get.Call(context.Background(), []sandbox.Value{sandbox.Str("doc-1")})
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("report.pdf"), fetched.Map["name"])
}

func TestSearchPageNodesDegradesAndMatches(t *testing.T) {
	tools, st := newTestCoreTools(t)
	require.NoError(t, st.InsertDocument(store.Document{ID: "d1"}))
	require.NoError(t, st.InsertPage(store.Page{ID: "p1", DocumentID: "d1"}))
	require.NoError(t, st.InsertPageNode(store.PageNode{ID: "n1", PageID: "p1", DocumentID: "d1", Type: store.NodeParagraph, Content: "FOOBAR lives here"}))

	search := findTool(t, tools, "search-page-nodes")
	v, err := search.Call(context.Background(), []sandbox.Value{sandbox.Str("foobar")})
	require.NoError(t, err)
	require.Len(t, v.Vec, 1)

	listAll, err := search.Call(context.Background(), []sandbox.Value{sandbox.Nil})
	require.NoError(t, err)
	require.Len(t, listAll.Vec, 1)
}

func TestVoteLearningThroughTool(t *testing.T) {
	tools, st := newTestCoreTools(t)
	require.NoError(t, st.InsertLearning(store.Learning{ID: "l1", Insight: "prefer search before reading full page"}))

	vote := findTool(t, tools, "vote-learning")
	for i := 0; i < 5; i++ {
		_, err := vote.Call(context.Background(), []sandbox.Value{sandbox.Str("l1"), sandbox.Str(string(store.VoteNotUseful))})
		require.NoError(t, err)
	}

	l, ok := st.GetLearningByID("l1")
	require.True(t, ok)
	require.True(t, l.Decayed())
}

func TestFinalAndFinalVar(t *testing.T) {
	tools := CoreTools(mustDisposableStore(t), fakeLocals{m: map[string]sandbox.Value{"answer": sandbox.Int(42)}}, nil)

	final := findTool(t, tools, "FINAL")
	v, err := final.Call(context.Background(), []sandbox.Value{sandbox.Int(7)})
	require.NoError(t, err)
	result, ok := IsFinal(v)
	require.True(t, ok)
	require.Equal(t, sandbox.Int(7), result)

	finalVar := findTool(t, tools, "FINAL-VAR")
	v2, err := finalVar.Call(context.Background(), []sandbox.Value{sandbox.Str("answer")})
	require.NoError(t, err)
	result2, ok := IsFinal(v2)
	require.True(t, ok)
	require.Equal(t, sandbox.Int(42), result2)
}

func TestListLocalsAndGetLocal(t *testing.T) {
	tools := CoreTools(mustDisposableStore(t), fakeLocals{m: map[string]sandbox.Value{"xs": sandbox.Vector(sandbox.Int(1), sandbox.Int(2))}}, nil)

	list := findTool(t, tools, "list-locals")
	v, err := list.Call(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, sandbox.ToNative(v), "xs")

	get := findTool(t, tools, "get-local")
	v2, err := get.Call(context.Background(), []sandbox.Value{sandbox.Str("xs")})
	require.NoError(t, err)
	require.Equal(t, sandbox.KindVector, v2.Kind)
}

func TestLLMQueryAndRLMQueryDelegateToRecursor(t *testing.T) {
	rec := fakeRecursor{llmAnswer: "42", rlmAnswer: "nested answer"}
	tools := CoreTools(mustDisposableStore(t), nil, rec)

	llm := findTool(t, tools, "llm-query")
	v, err := llm.Call(context.Background(), []sandbox.Value{sandbox.Str("what is the answer?")})
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("42"), v)

	rlm := findTool(t, tools, "rlm-query")
	v2, err := rlm.Call(context.Background(), []sandbox.Value{sandbox.Str("doc context"), sandbox.Str("sub question")})
	require.NoError(t, err)
	require.Equal(t, sandbox.Str("nested answer"), v2)
}

func TestLLMQueryWithoutRecursorErrors(t *testing.T) {
	tools := CoreTools(mustDisposableStore(t), nil, nil)
	llm := findTool(t, tools, "llm-query")
	_, err := llm.Call(context.Background(), []sandbox.Value{sandbox.Str("x")})
	require.Error(t, err)
}

func mustDisposableStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewDisposable()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Dispose() })
	return st
}
