package session

import (
	"context"
	"time"
)

// Turn is one question/answer exchange within a conversation.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Buffer is a session's conversational state: a running summary of
// compressed older turns plus the raw recent turns.
type Buffer struct {
	Summary string `json:"summary"`
	Turns   []Turn `json:"turns"`
}

// Store holds per-session buffers. Implementations must serialise
// Update calls per session id so that concurrent queries for the same
// conversation cannot interleave their read-modify-write.
type Store interface {
	// Get returns the current buffer for a session, zero when absent.
	Get(ctx context.Context, sessionID string) (Buffer, error)

	// Update applies fn to the session's buffer under the per-session
	// lock and persists the result.
	Update(ctx context.Context, sessionID string, fn func(*Buffer) error) error
}
