package store

import (
	"strings"

	"github.com/samber/lo"
)

func matchesQuery(query string, fields ...string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// GetDocumentByID returns the document, or ok=false if absent. Get never fails
// on missing data, per spec.md §4.1 "Failure model".
func (s *Store) GetDocumentByID(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	return d, ok
}

func (s *Store) GetPageByID(id string) (Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	return p, ok
}

func (s *Store) GetPageNodeByID(id string) (PageNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.pageNodes[id]
	return n, ok
}

func (s *Store) GetTocEntryByID(id string) (TocEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tocEntries.Get(id)
	return e, ok
}

func (s *Store) GetEntityByID(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

func (s *Store) GetRelationshipByID(id string) (Relationship, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationships[id]
	return r, ok
}

func (s *Store) GetClaimByID(id string) (Claim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	return c, ok
}

func (s *Store) GetLearningByID(id string) (Learning, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.learnings[id]
	return l, ok
}

// ListDocuments returns documents, optionally limited. Documents have no
// type/document-id filter (they are the root), so ListFilter.Limit is the
// only field honored.
func (s *Store) ListDocuments(f ListFilter) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := lo.Values(s.documents)
	return applyLimit(docs, f.Limit)
}

// SearchPageNodes performs a case-insensitive substring match over content +
// description when query is non-blank; a blank/nil query degrades to
// list-with-filters (spec.md §4.1). When a SemanticIndex is configured its
// ranked ids are merged ahead of the substring matches, never replacing them.
func (s *Store) SearchPageNodes(query string, f ListFilter) []PageNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var semanticOrder []string
	if s.semanticIndex != nil && strings.TrimSpace(query) != "" {
		if ids, err := s.semanticIndex.Query(query, f.Limit); err == nil {
			semanticOrder = ids
		}
	}

	matched := make(map[string]PageNode)
	var ordered []PageNode
	for _, id := range semanticOrder {
		n, ok := s.pageNodes[id]
		if !ok || matched[id].ID != "" {
			continue
		}
		if f.DocumentID != "" && n.DocumentID != f.DocumentID {
			continue
		}
		if f.Type != "" && string(n.Type) != f.Type {
			continue
		}
		matched[id] = n
		ordered = append(ordered, n)
	}

	for _, n := range s.pageNodes {
		if _, already := matched[n.ID]; already {
			continue
		}
		if f.DocumentID != "" && n.DocumentID != f.DocumentID {
			continue
		}
		if f.Type != "" && string(n.Type) != f.Type {
			continue
		}
		if !matchesQuery(query, n.Content, n.Description) {
			continue
		}
		ordered = append(ordered, n)
	}

	return applyLimit(ordered, f.Limit)
}

// SearchTocEntries mirrors SearchPageNodes over title + description, in
// insertion order.
func (s *Store) SearchTocEntries(query string, f ListFilter) []TocEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TocEntry
	for pair := s.tocEntries.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if f.DocumentID != "" && e.DocumentID != f.DocumentID {
			continue
		}
		if !matchesQuery(query, e.Title, e.Description) {
			continue
		}
		out = append(out, e)
	}
	return applyLimit(out, f.Limit)
}

// SearchEntities mirrors SearchPageNodes over name + description.
func (s *Store) SearchEntities(query string, f ListFilter) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, e := range s.entities {
		if f.DocumentID != "" && e.DocumentID != f.DocumentID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if !matchesQuery(query, e.Name, e.Description) {
			continue
		}
		out = append(out, e)
	}
	return applyLimit(out, f.Limit)
}

// ListRelationshipsByEntity returns relationships where id is either endpoint.
func (s *Store) ListRelationshipsByEntity(id string, limit int) []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(lo.Values(s.relationships), func(r Relationship, _ int) bool {
		return r.SourceEntityID == id || r.TargetEntityID == id
	})
	return applyLimit(out, limit)
}

// SearchClaims returns claims, filtered by DocumentID when one is set; the
// order of the result is not defined.
func (s *Store) SearchClaims(f ListFilter) []Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(lo.Values(s.claims), func(c Claim, _ int) bool {
		return f.DocumentID == "" || c.DocumentID == f.DocumentID
	})
	return applyLimit(out, f.Limit)
}

// Messages returns the full append-only conversation log, ordered by
// timestamp (i.e. insertion order, since insertion is the only write path).
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SearchLearnings matches insight + context; decayed learnings are excluded
// unless includeDecayed is true (spec.md §3 "excluded from search by
// default").
func (s *Store) SearchLearnings(query string, f ListFilter, includeDecayed bool) []Learning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Learning
	for _, l := range s.learnings {
		if !includeDecayed && l.Decayed() {
			continue
		}
		if !matchesQuery(query, l.Insight, l.Context) {
			continue
		}
		out = append(out, l)
	}
	return applyLimit(out, f.Limit)
}
