package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tangerg/lynx/pkg/dataunit"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxImageSize is the hard cap on PageNode.ImageBytes (spec.md §4.1
// "Large-binary policy"). It is overridable via WithMaxImageSize, resolving
// spec.md §9's open question about exposing the literal as a knob.
var DefaultMaxImageSize = mustMB(5)

func mustMB(mb int64) dataunit.DataSize {
	sz, err := dataunit.SizeOfMB(mb)
	if err != nil {
		panic(err)
	}
	return sz
}

const snapshotFileName = "store.snapshot.json"

// Store is the process-local, single-writer-per-process, typed
// multi-collection described by spec.md §4.1. It is safe for concurrent
// readers and a single concurrent writer; spec.md §5 explicitly leaves
// concurrent-query synchronization across environments undefined, so this
// type does not attempt to serialize whole-query operations, only the
// individual record mutations below.
type Store struct {
	mu     sync.RWMutex
	dirty  atomic.Bool
	logger Logger

	dir        string
	disposable bool

	maxImageSize  dataunit.DataSize
	semanticIndex SemanticIndex

	flushGroup singleflight.Group

	documents     map[string]Document
	pages         map[string]Page
	pageNodes     map[string]PageNode
	tocEntries    *orderedmap.OrderedMap[string, TocEntry]
	entities      map[string]Entity
	relationships map[string]Relationship
	claims        map[string]Claim
	messages      []Message
	learnings     map[string]Learning
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger installs a structured logger; flush failures and oversized
// image rejections are reported through it.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxImageSize overrides DefaultMaxImageSize.
func WithMaxImageSize(size dataunit.DataSize) Option {
	return func(s *Store) { s.maxImageSize = size }
}

// WithSemanticIndex attaches an optional ranking signal layered on top of
// (never in place of) the mandatory case-insensitive substring search.
func WithSemanticIndex(idx SemanticIndex) Option {
	return func(s *Store) { s.semanticIndex = idx }
}

func newStore(dir string, disposable bool, opts ...Option) *Store {
	s := &Store{
		logger:        noopLogger{},
		dir:           dir,
		disposable:    disposable,
		maxImageSize:  DefaultMaxImageSize,
		documents:     make(map[string]Document),
		pages:         make(map[string]Page),
		pageNodes:     make(map[string]PageNode),
		tocEntries:    orderedmap.New[string, TocEntry](),
		entities:      make(map[string]Entity),
		relationships: make(map[string]Relationship),
		claims:        make(map[string]Claim),
		learnings:     make(map[string]Learning),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDisposable creates a Store backed by a fresh temporary directory that
// is removed on Dispose.
func NewDisposable(opts ...Option) (*Store, error) {
	dir, err := os.MkdirTemp("", "rlm-store-*")
	if err != nil {
		return nil, fmt.Errorf("store: create temp dir: %w", err)
	}
	return newStore(dir, true, opts...), nil
}

// NewPersistent creates a Store backed by dir. If a prior snapshot exists it
// is loaded; on parse failure the store logs a warning and starts empty
// (spec.md §4.1 "Failure model").
func NewPersistent(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %q: %w", dir, err)
	}
	s := newStore(dir, false, opts...)
	if err := s.load(); err != nil {
		s.logger.Warnf("store: failed to load snapshot at %s: %v; starting empty", dir, err)
	}
	return s, nil
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.dir, snapshotFileName)
}

func (s *Store) markDirty() {
	s.dirty.Store(true)
}

// Dirty reports whether the store has unflushed mutations.
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

// Flush atomically writes the snapshot to disk if dirty, de-duplicating
// concurrent callers via singleflight so a single in-flight write suffices
// (spec.md §5 "Snapshotting is serialized; a single in-flight flush is
// sufficient").
func (s *Store) Flush() error {
	if !s.Dirty() {
		return nil
	}
	_, err, _ := s.flushGroup.Do("flush", func() (any, error) {
		return nil, s.flushNow()
	})
	return err
}

func (s *Store) flushNow() error {
	s.mu.RLock()
	data, err := s.encodeSnapshot()
	s.mu.RUnlock()
	if err != nil {
		s.logger.Errorf("store: encode snapshot: %v", err)
		return err
	}

	tmp := s.snapshotPath() + ".tmp"
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Errorf("store: flush mkdir %s: %v", s.dir, err)
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Errorf("store: flush write %s: %v", tmp, err)
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath()); err != nil {
		s.logger.Errorf("store: flush rename %s: %v", s.snapshotPath(), err)
		return err
	}
	s.dirty.Store(false)
	return nil
}

// Dispose flushes pending mutations and, for disposable stores, removes the
// backing directory.
func (s *Store) Dispose() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if s.disposable {
		return os.RemoveAll(s.dir)
	}
	return nil
}

func (s *Store) now() time.Time { return time.Now() }

// Stats computes type-count frequencies and vote/application totals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{
		"documents":     len(s.documents),
		"pages":         len(s.pages),
		"page_nodes":    len(s.pageNodes),
		"toc_entries":   s.tocEntries.Len(),
		"entities":      len(s.entities),
		"relationships": len(s.relationships),
		"claims":        len(s.claims),
		"messages":      len(s.messages),
		"learnings":     len(s.learnings),
	}

	totalVotes, totalApplied, decayed := 0, 0, 0
	for _, l := range s.learnings {
		totalVotes += l.UsefulCount + l.NotUsefulCount
		totalApplied += l.AppliedCount
		if l.Decayed() {
			decayed++
		}
	}

	return Stats{
		TypeCounts:       counts,
		TotalVotes:       totalVotes,
		TotalApplied:     totalApplied,
		DecayedLearnings: decayed,
	}
}
