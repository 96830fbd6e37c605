// Package ingest implements the pipeline that loads a document tree into
// the store: document/page/node/TOC insertion, and optional two-phase
// entity/relationship extraction over each page's text and visual nodes.
package ingest

import (
	"github.com/rlmkit/rlm/store"
)

// Document is the external, nested shape ingest accepts: a document with
// its pages, each page's nodes, and the document's table of contents. It
// is validated and flattened into store.Document/Page/PageNode/TocEntry
// inserts, recursively, document first.
type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Title     string         `json:"title,omitempty"`
	Abstract  string         `json:"abstract,omitempty"`
	Extension string         `json:"extension"`
	Author    string         `json:"author,omitempty"`
	Pages     []Page         `json:"pages"`
	TocEntries []TocEntry    `json:"toc_entries,omitempty"`
}

// Page is one page of a Document, 0-indexed, owning its nodes.
type Page struct {
	Index int        `json:"index"`
	Nodes []PageNode `json:"nodes"`
}

// PageNode mirrors store.PageNode's shape but without the IDs the pipeline
// itself assigns on insert.
type PageNode struct {
	LocalID      string            `json:"local_id"`
	Type         store.PageNodeType `json:"type"`
	ParentID     string            `json:"parent_id,omitempty"`
	Level        string            `json:"level,omitempty"`
	Content      string            `json:"content,omitempty"`
	ImageBytes   []byte            `json:"image_bytes,omitempty"`
	Description  string            `json:"description,omitempty"`
	Continuation bool              `json:"continuation,omitempty"`
	Caption      string            `json:"caption,omitempty"`
	Kind         string            `json:"kind,omitempty"`
	BBox         string            `json:"bbox,omitempty"`
	GroupID      string            `json:"group_id,omitempty"`
}

// TocEntry mirrors store.TocEntry's externally-supplied fields.
type TocEntry struct {
	Type          string `json:"type"`
	ParentID      string `json:"parent_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	TargetPage    int    `json:"target_page"`
	TargetSection string `json:"target_section_id,omitempty"`
	Level         int    `json:"level"`
}

// Options configures one Pipeline.Ingest call.
type Options struct {
	ExtractEntities      bool
	ExtractionModel      string
	MaxExtractionPages   int
	MaxVisionRescanNodes int
	Concurrency          int
}

const (
	// DefaultTextExtractionCharCap bounds how much of a text node's content
	// a single extraction call sees (spec.md §4.7, "truncates input to a
	// character cap (default 8000)").
	DefaultTextExtractionCharCap = 8000
	// DefaultMaxVisionCallsPerDocument bounds how many vision extraction
	// calls one document's ingest may make, regardless of how many visual
	// nodes it has.
	DefaultMaxVisionCallsPerDocument = 10
)

func (o Options) withDefaults() Options {
	if o.MaxVisionRescanNodes <= 0 {
		o.MaxVisionRescanNodes = DefaultMaxVisionCallsPerDocument
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// ExtractionResult is the structured output of one page's extraction call.
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// ExtractedEntity is one entity surfaced by the extraction LLM, referenced
// by name rather than ID until phase 1 resolves it.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship links two entities by the names the extraction LLM
// produced; phase 2 resolves Source/Target through the name->UUID lookup.
type ExtractedRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Result is the per-document outcome returned by Ingest.
type Result struct {
	DocumentID            string `json:"document_id"`
	PagesStored           int    `json:"pages_stored"`
	NodesStored           int    `json:"nodes_stored"`
	TocEntriesStored      int    `json:"toc_entries_stored"`
	EntitiesExtracted     int    `json:"entities_extracted,omitempty"`
	RelationshipsExtracted int   `json:"relationships_extracted,omitempty"`
	PagesProcessed        int    `json:"pages_processed,omitempty"`
	ExtractionErrors      []string `json:"extraction_errors,omitempty"`
	VisualNodesScanned    int    `json:"visual_nodes_scanned,omitempty"`
}
