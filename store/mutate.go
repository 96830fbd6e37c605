package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrDocumentNotFound, ErrPageNotFound, and friends are returned by the
// referential-consistency checks on insert. Per spec.md §4.1 these are
// "best effort on write" — dangling references are tolerated on read, never
// created by core writes. ErrImageTooLarge is not returned by InsertPageNode:
// oversized image bytes are dropped, a warning is logged, and the node is
// stored without them.
var (
	ErrDocumentNotFound     = errors.New("store: document not found")
	ErrPageNotFound         = errors.New("store: page not found")
	ErrEntityNotFound       = errors.New("store: entity not found")
	ErrImageTooLarge        = errors.New("store: image bytes exceed configured maximum")
	ErrContentAndImageBytes = errors.New("store: page node may not set both content and image bytes")
)

// InsertDocument upserts a Document by ID.
func (s *Store) InsertDocument(d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
	s.markDirty()
	return nil
}

// InsertPage upserts a Page by ID after verifying DocumentID resolves.
func (s *Store) InsertPage(p Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[p.DocumentID]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, p.DocumentID)
	}
	s.pages[p.ID] = p
	s.markDirty()
	return nil
}

// InsertPageNode upserts a PageNode after verifying PageID resolves, the
// content/image-bytes mutual exclusion invariant, and the image size cap.
func (s *Store) InsertPageNode(n PageNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[n.PageID]; !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, n.PageID)
	}
	if n.Content != "" && len(n.ImageBytes) > 0 {
		return ErrContentAndImageBytes
	}
	if len(n.ImageBytes) > 0 {
		if int64(len(n.ImageBytes)) > s.maxImageSize.Int64() {
			s.logger.Warnf("store: page node %s image bytes (%d) exceed cap (%d); storing without image", n.ID, len(n.ImageBytes), s.maxImageSize.Int64())
			n.ImageBytes = nil
		}
	}
	s.pageNodes[n.ID] = n
	s.markDirty()
	if s.semanticIndex != nil && n.Content != "" {
		if err := s.semanticIndex.Index(n); err != nil {
			s.logger.Warnf("store: semantic index failed for %s: %v", n.ID, err)
		}
	}
	return nil
}

// InsertTocEntry upserts a TocEntry, preserving insertion order for traversal.
func (s *Store) InsertTocEntry(e TocEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[e.DocumentID]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, e.DocumentID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.tocEntries.Set(e.ID, e)
	s.markDirty()
	return nil
}

// InsertEntity upserts an Entity by ID.
func (s *Store) InsertEntity(e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.entities[e.ID] = e
	s.markDirty()
	return nil
}

// InsertRelationship upserts a Relationship after verifying both endpoints
// resolve to existing entities.
func (s *Store) InsertRelationship(r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[r.SourceEntityID]; !ok {
		return fmt.Errorf("%w: source %s", ErrEntityNotFound, r.SourceEntityID)
	}
	if _, ok := s.entities[r.TargetEntityID]; !ok {
		return fmt.Errorf("%w: target %s", ErrEntityNotFound, r.TargetEntityID)
	}
	s.relationships[r.ID] = r
	s.markDirty()
	return nil
}

// InsertClaim upserts a Claim by ID.
func (s *Store) InsertClaim(c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.claims[c.ID] = c
	s.markDirty()
	return nil
}

// UpdateClaim upserts a claim's verification outcome; it is a thin alias of
// InsertClaim kept for call-site clarity in the refinement pipeline.
func (s *Store) UpdateClaim(c Claim) error { return s.InsertClaim(c) }

// InsertMessage appends a Message. The conversation log is strictly
// append-only: Message has no update path, matching spec.md's
// "Across iterations, the message log is strictly append-only" guarantee.
func (s *Store) InsertMessage(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Content == "" {
		return errors.New("store: message content must not be blank")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.messages = append(s.messages, m)
	s.markDirty()
	return nil
}

// InsertLearning upserts a Learning by ID.
func (s *Store) InsertLearning(l Learning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	s.learnings[l.ID] = l
	s.markDirty()
	return nil
}

// VoteLearning atomically increments the corresponding vote counter, updates
// LastEvaluated, and re-derives Decayed status (read via Learning.Decayed()).
func (s *Store) VoteLearning(id string, v Vote) (Learning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.learnings[id]
	if !ok {
		return Learning{}, fmt.Errorf("store: learning not found: %s", id)
	}
	switch v {
	case VoteUseful:
		l.UsefulCount++
	case VoteNotUseful:
		l.NotUsefulCount++
	default:
		return Learning{}, fmt.Errorf("store: invalid vote %q", v)
	}
	now := time.Now()
	l.LastEvaluated = &now
	s.learnings[id] = l
	s.markDirty()
	return l, nil
}

// IncrementAppliedCount bumps a Learning's AppliedCount by one.
func (s *Store) IncrementAppliedCount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.learnings[id]
	if !ok {
		return fmt.Errorf("store: learning not found: %s", id)
	}
	l.AppliedCount++
	s.learnings[id] = l
	s.markDirty()
	return nil
}
