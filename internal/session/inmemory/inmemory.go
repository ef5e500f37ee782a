package inmemory

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/vidqa/internal/session"
)

// Store is an in-process session buffer store with one lock per
// session id.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	buf session.Buffer
}

// NewStore creates an empty in-memory session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) entryFor(sessionID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{}
		s.entries[sessionID] = e
	}
	return e
}

// Get returns the current buffer for a session.
func (s *Store) Get(_ context.Context, sessionID string) (session.Buffer, error) {
	e := s.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buf
	buf.Turns = append([]session.Turn(nil), e.buf.Turns...)
	return buf, nil
}

// Update applies fn under the session's lock.
func (s *Store) Update(_ context.Context, sessionID string, fn func(*session.Buffer) error) error {
	e := s.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.buf)
}
