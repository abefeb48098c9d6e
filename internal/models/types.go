package models

import (
	"time"
)

// Message roles as sent to the generation providers.
const (
	RoleUser      = "user"
	RoleAssistant = "model"
)

// ChatMessage is one turn of a per-user conversation log. Messages are
// immutable once stored and ordered by Timestamp ascending.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserInfo identifies the requesting user. ID is the ownership key for
// history and memory; the remaining fields only enrich the prompt.
type UserInfo struct {
	ID           string
	FirstName    string
	Username     string
	LanguageCode string
}

// MemoryFact is a durable, user-owned snippet considered worth retrieving in
// future conversations. Facts are never mutated; they are deleted only by a
// per-user purge.
type MemoryFact struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	OwnerID   string           `json:"owner_id"`
	Source    string           `json:"source"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  map[string]Value `json:"metadata,omitempty"`
}

// RetrievedDocument is the transient result of a similarity query.
type RetrievedDocument struct {
	Fact       MemoryFact
	Similarity float32
}

// ToolCall is a structured request, embedded in a provider response, to
// invoke a named function before finalizing the reply.
type ToolCall struct {
	Name string
	Args map[string]Value
}

// Media carries an inline attachment for multimodal generation.
type Media struct {
	Data     []byte
	MIMEType string
}

// CacheEntry is a cached generation reply.
type CacheEntry struct {
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
