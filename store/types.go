// Package store implements the durable knowledge store: the in-process,
// dirty-flagged, file-persisted collection of documents, page nodes, TOC
// entries, entities, relationships, claims, conversation messages, and voted
// learnings that the sandbox tool bindings read from and write to.
package store

import "time"

// PageNodeType enumerates the kinds a PageNode can take. Text and visual
// types are mutually exclusive on Content/ImageBytes.
type PageNodeType string

const (
	NodeSection    PageNodeType = "section"
	NodeHeading    PageNodeType = "heading"
	NodeParagraph  PageNodeType = "paragraph"
	NodeListItem   PageNodeType = "list-item"
	NodeImage      PageNodeType = "image"
	NodeTable      PageNodeType = "table"
	NodeHeader     PageNodeType = "header"
	NodeFooter     PageNodeType = "footer"
	NodeMetadata   PageNodeType = "metadata"
)

// IsVisual reports whether nodes of this type carry ImageBytes instead of Content.
func (t PageNodeType) IsVisual() bool {
	return t == NodeImage || t == NodeTable
}

// VerificationVerdict is the outcome of a claim's factored verification.
type VerificationVerdict string

const (
	VerdictCorrect          VerificationVerdict = "correct"
	VerdictIncorrect        VerificationVerdict = "incorrect"
	VerdictPartiallyCorrect VerificationVerdict = "partially-correct"
	VerdictUncertain        VerificationVerdict = "uncertain"
)

// MessageRole is the role tag on a conversation Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Document is the root of an ingested corpus item. It owns its Pages and TocEntries.
type Document struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title,omitempty"`
	Abstract  string     `json:"abstract,omitempty"`
	Extension string     `json:"extension"`
	Author    string     `json:"author,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Page is a 0-indexed page owned by a Document. It owns its PageNodes.
type Page struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
}

// PageNode is one structural unit of a Page: a heading, paragraph, image, etc.
type PageNode struct {
	ID         string       `json:"id"`
	PageID     string       `json:"page_id"`
	DocumentID string       `json:"document_id"`
	LocalID    string       `json:"local_id"`
	Type       PageNodeType `json:"type"`
	ParentID   string       `json:"parent_id,omitempty"`
	Level      string       `json:"level,omitempty"`
	Content    string       `json:"content,omitempty"`
	ImageBytes []byte       `json:"image_bytes,omitempty"`
	Description string      `json:"description,omitempty"`
	Continuation bool       `json:"continuation,omitempty"`
	Caption    string       `json:"caption,omitempty"`
	Kind       string       `json:"kind,omitempty"`
	BBox       string       `json:"bbox,omitempty"`
	GroupID    string       `json:"group_id,omitempty"`
}

// TocEntry is one entry in a Document's table of contents.
type TocEntry struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	Type          string    `json:"type"`
	ParentID      string    `json:"parent_id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	TargetPage    int       `json:"target_page"`
	TargetSection string    `json:"target_section_id,omitempty"`
	Level         int       `json:"level"`
	CreatedAt     time.Time `json:"created_at"`
}

// Entity is an extracted named thing (party, obligation, term, ...).
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	DocumentID  string    `json:"document_id"`
	Page        *int      `json:"page,omitempty"`
	Section     string    `json:"section,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Relationship links two Entities. Source/Target must resolve to existing
// entities at write time.
type Relationship struct {
	ID             string `json:"id"`
	SourceEntityID string `json:"source_entity_id"`
	TargetEntityID string `json:"target_entity_id"`
	Type           string `json:"type"`
	DocumentID     string `json:"document_id"`
	Description    string `json:"description,omitempty"`
}

// Claim is an atomic assertion extracted from an answer, subject to verification.
type Claim struct {
	ID          string               `json:"id"`
	Text        string               `json:"text"`
	DocumentID  string               `json:"document_id,omitempty"`
	Page        *int                 `json:"page,omitempty"`
	Section     string               `json:"section,omitempty"`
	Quote       string               `json:"quote,omitempty"`
	Confidence  float64              `json:"confidence"`
	QueryID     string               `json:"query_id,omitempty"`
	Verified    bool                 `json:"verified"`
	Verdict     VerificationVerdict  `json:"verification_verdict,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Message is one turn of conversation history.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Tokens    int         `json:"tokens"`
	Timestamp time.Time   `json:"timestamp"`
	Iteration int         `json:"iteration"`
}

// Learning is a voted meta-insight. It decays when total votes >= 5 and the
// negative fraction exceeds 0.7.
type Learning struct {
	ID              string     `json:"id"`
	Insight         string     `json:"insight"`
	Context         string     `json:"context,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	UsefulCount     int        `json:"useful_count"`
	NotUsefulCount  int        `json:"not_useful_count"`
	AppliedCount    int        `json:"applied_count"`
	LastEvaluated   *time.Time `json:"last_evaluated,omitempty"`
}

// Decayed reports whether the learning should be excluded from search by default.
func (l Learning) Decayed() bool {
	total := l.UsefulCount + l.NotUsefulCount
	if total < 5 {
		return false
	}
	return float64(l.NotUsefulCount)/float64(total) > 0.7
}

// Vote is the direction of a vote-learning mutation.
type Vote string

const (
	VoteUseful    Vote = "useful"
	VoteNotUseful Vote = "not-useful"
)

// Stats summarizes collection sizes and learning vote totals.
type Stats struct {
	TypeCounts      map[string]int `json:"type_counts"`
	TotalVotes      int            `json:"total_votes"`
	TotalApplied    int            `json:"total_applied"`
	DecayedLearnings int           `json:"decayed_learnings"`
}

// ListFilter narrows search-*/list-* queries.
type ListFilter struct {
	DocumentID string
	Type       string
	Limit      int
}
