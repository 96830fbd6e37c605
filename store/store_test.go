package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewDisposable()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Dispose() })
	return s
}

func TestInsertDocumentPageNode(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertDocument(Document{ID: "doc-1", Name: "contract.pdf"}))
	require.NoError(t, s.InsertPage(Page{ID: "doc-1-page-0", DocumentID: "doc-1", Index: 0}))

	require.NoError(t, s.InsertPageNode(PageNode{
		ID: "doc-1-page-0-node-1", PageID: "doc-1-page-0", DocumentID: "doc-1",
		LocalID: "1", Type: NodeParagraph, Content: "foobar lives here",
	}))
	require.NoError(t, s.InsertPageNode(PageNode{
		ID: "doc-1-page-0-node-2", PageID: "doc-1-page-0", DocumentID: "doc-1",
		LocalID: "2", Type: NodeParagraph, Content: "baz lives here too",
	}))

	// Referential consistency: page must resolve to an existing document.
	err := s.InsertPage(Page{ID: "doc-2-page-0", DocumentID: "doc-missing", Index: 0})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestSearchPageNodesCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertDocument(Document{ID: "doc-1", Name: "d"}))
	require.NoError(t, s.InsertPage(Page{ID: "p0", DocumentID: "doc-1", Index: 0}))
	require.NoError(t, s.InsertPageNode(PageNode{ID: "n1", PageID: "p0", DocumentID: "doc-1", Type: NodeParagraph, Content: "has FOOBAR inside"}))
	require.NoError(t, s.InsertPageNode(PageNode{ID: "n2", PageID: "p0", DocumentID: "doc-1", Type: NodeParagraph, Content: "has baz inside"}))

	results := s.SearchPageNodes("foobar", ListFilter{})
	require.Len(t, results, 1)
	require.Equal(t, "n1", results[0].ID)
}

func TestSearchDegradesToList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertDocument(Document{ID: "doc-1", Name: "d"}))
	require.NoError(t, s.InsertPage(Page{ID: "p0", DocumentID: "doc-1", Index: 0}))
	require.NoError(t, s.InsertPageNode(PageNode{ID: "n1", PageID: "p0", DocumentID: "doc-1", Type: NodeParagraph, Content: "x"}))
	require.NoError(t, s.InsertPageNode(PageNode{ID: "n2", PageID: "p0", DocumentID: "doc-1", Type: NodeParagraph, Content: "y"}))

	viaNil := s.SearchPageNodes("", ListFilter{Limit: 10})
	require.Len(t, viaNil, 2)
}

func TestImageBytesOverCapRejected(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertDocument(Document{ID: "doc-1", Name: "d"}))
	require.NoError(t, s.InsertPage(Page{ID: "p0", DocumentID: "doc-1", Index: 0}))

	oversized := make([]byte, DefaultMaxImageSize.Int64()+1)
	require.NoError(t, s.InsertPageNode(PageNode{
		ID: "n1", PageID: "p0", DocumentID: "doc-1", Type: NodeImage, ImageBytes: oversized,
	}))

	n, ok := s.GetPageNodeByID("n1")
	require.True(t, ok)
	require.Nil(t, n.ImageBytes)
}

func TestRelationshipRequiresResolvedEntities(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertEntity(Entity{ID: "e1", Name: "Acme Corp", Type: "party", DocumentID: "doc-1"}))

	err := s.InsertRelationship(Relationship{ID: "r1", SourceEntityID: "e1", TargetEntityID: "does-not-exist"})
	require.ErrorIs(t, err, ErrEntityNotFound)

	require.NoError(t, s.InsertEntity(Entity{ID: "e2", Name: "Beta LLC", Type: "party", DocumentID: "doc-1"}))
	require.NoError(t, s.InsertRelationship(Relationship{ID: "r1", SourceEntityID: "e1", TargetEntityID: "e2"}))
}

func TestLearningDecayMonotonicity(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertLearning(Learning{ID: "l1", Insight: "always check the TOC first"}))

	l, _ := s.GetLearningByID("l1")
	require.False(t, l.Decayed())

	for i := 0; i < 5; i++ {
		_, err := s.VoteLearning("l1", VoteNotUseful)
		require.NoError(t, err)
	}
	l, _ = s.GetLearningByID("l1")
	require.True(t, l.Decayed())

	results := s.SearchLearnings("", ListFilter{}, false)
	require.Empty(t, results)
	results = s.SearchLearnings("", ListFilter{}, true)
	require.Len(t, results, 1)

	// One positive vote brings the negative fraction to 5/6 ≈ 0.83 > 0.7 — still decayed.
	_, err := s.VoteLearning("l1", VoteUseful)
	require.NoError(t, err)
	l, _ = s.GetLearningByID("l1")
	require.True(t, l.Decayed())
}

func TestDirtyFlagClearsOnFlush(t *testing.T) {
	s := newTestStore(t)
	require.False(t, s.Dirty())

	require.NoError(t, s.InsertDocument(Document{ID: "doc-1", Name: "d"}))
	require.True(t, s.Dirty())

	require.NoError(t, s.Flush())
	require.False(t, s.Dirty())
}

func TestPersistentRoundtrip(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewPersistent(dir)
	require.NoError(t, err)
	require.NoError(t, s1.InsertDocument(Document{ID: "doc-1", Name: "d"}))
	require.NoError(t, s1.InsertPage(Page{ID: "p0", DocumentID: "doc-1", Index: 0}))
	require.NoError(t, s1.InsertPageNode(PageNode{ID: "n1", PageID: "p0", DocumentID: "doc-1", Type: NodeParagraph, Content: "foobar"}))
	require.NoError(t, s1.Dispose())

	s2, err := NewPersistent(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Dispose() })

	results := s2.SearchPageNodes("FOOBAR", ListFilter{})
	require.Len(t, results, 1)
	require.Equal(t, "n1", results[0].ID)
}

func TestMessagesAppendOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertMessage(Message{ID: "m1", Role: RoleUser, Content: "hi", Timestamp: time.Now()}))
	require.NoError(t, s.InsertMessage(Message{ID: "m2", Role: RoleAssistant, Content: "hello", Timestamp: time.Now()}))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)
}
