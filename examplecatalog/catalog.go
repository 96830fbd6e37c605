// Package examplecatalog stores the few-shot good/bad examples the Prompt
// Builder splices into a system prompt: a size-bounded, LRU-by-timestamp
// collection rather than unbounded process-global state.
package examplecatalog

import (
	"sort"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MaxEntries bounds the catalog: past this many entries, the oldest by
// insertion order is evicted to make room for the newest.
const MaxEntries = 100

// GoodThreshold is the score at or above which an Example counts as "good"
// for the Prompt Builder's few-shot splice.
const GoodThreshold = 32

// MaxScore is the upper bound of Example.Score.
const MaxScore = 40

// Example is one recorded query/answer pair with a quality score, used as a
// few-shot demonstration in future prompts.
type Example struct {
	Query          string
	ContextSummary string
	Answer         string
	Score          int
	Feedback       string
	Timestamp      time.Time
}

// Good reports whether this example scored well enough to be shown as a
// positive demonstration rather than a cautionary one.
func (e Example) Good() bool {
	return e.Score >= GoodThreshold
}

// Catalog is a concurrency-safe, capacity-bounded store of Examples keyed
// by an opaque id, evicting the oldest insertion once MaxEntries is
// exceeded.
type Catalog struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, Example]
}

// New builds an empty Catalog.
func New() *Catalog {
	return &Catalog{entries: orderedmap.New[string, Example]()}
}

// Add records ex under id, evicting the oldest entry first if the catalog
// is already at MaxEntries.
func (c *Catalog) Add(id string, ex Example) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries.Get(id); !exists && c.entries.Len() >= MaxEntries {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
		}
	}
	c.entries.Set(id, ex)
}

// All returns every stored example, oldest first.
func (c *Catalog) All() []Example {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Example, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Good returns up to limit good examples (Score >= GoodThreshold), ordered
// by timestamp ascending.
func (c *Catalog) Good(limit int) []Example {
	return filterAndCap(c.All(), limit, func(e Example) bool { return e.Good() })
}

// Bad returns up to limit bad examples (Score < GoodThreshold), ordered by
// timestamp ascending.
func (c *Catalog) Bad(limit int) []Example {
	return filterAndCap(c.All(), limit, func(e Example) bool { return !e.Good() })
}

func filterAndCap(all []Example, limit int, keep func(Example) bool) []Example {
	matched := make([]Example, 0, len(all))
	for _, e := range all {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if limit >= 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Len reports how many examples are currently stored.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the process-wide fallback Catalog. It exists for callers
// that genuinely want shared state across environments; env.Environment
// does not use it, holding its own instance instead.
func Default() *Catalog {
	defaultOnce.Do(func() { defaultCat = New() })
	return defaultCat
}
