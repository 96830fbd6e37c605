// Package chat implements the LLM transport contract external to the
// iteration engine: flat Message/Request/Response types, a pluggable
// Transport (with a retrying OpenAI implementation), and the
// structured-output parser family the engine and the refinement pipeline
// both depend on.
package chat

import "time"

// Role tags a Message's speaker, mirroring store.MessageRole so the engine
// can round-trip a conversation turn between the two packages without a
// lossy conversion.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation passed to a Transport (spec.md §3).
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
}
