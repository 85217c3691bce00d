// ABOUTME: Shared data types and errors for errand-gateway persistence
// ABOUTME: Defines Credential, Turn, Invocation, and Chunk rows stored in SQLite

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Credential is a stored OAuth2 token pair plus metadata for one
// (provider, account) pair. Mutated only through ReplaceCredential.
type Credential struct {
	Provider     string
	Account      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scopes       []string
	Invalid      bool // set when the refresh token was rejected; cleared by re-authorization
	UpdatedAt    time.Time
}

// Turn is one entry in a session's append-only history.
type Turn struct {
	ID        string
	SessionID string
	Role      string // "user", "assistant", "tool", "event"
	Content   string
	ErrKind   string // terminating error kind for failed dispatches, empty otherwise
	CreatedAt time.Time
}

// Invocation status values recorded for dispatched commands.
const (
	InvocationExecuting = "executing"
	InvocationCompleted = "completed"
	InvocationFailed    = "failed"
)

// Invocation is the durable record of a dispatched command, keyed by the
// caller-supplied invocation id. Completed rows make retries idempotent
// across process restarts.
type Invocation struct {
	ID        string
	SessionID string
	Tool      string
	Status    string
	Result    string // JSON result for completed invocations
	ErrKind   string
	CreatedAt time.Time
}

// Chunk is one embedded document chunk in the retrieval index.
type Chunk struct {
	DocumentID string
	Offset     int // chunk index within the document
	Content    string
	Vector     []float32
}

// Binding records a session's association with a provider account.
type Binding struct {
	SessionID string
	Provider  string
	Account   string
	CreatedAt time.Time
}
