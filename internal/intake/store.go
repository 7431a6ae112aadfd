package intake

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when no session exists for the identifier.
var ErrSessionNotFound = errors.New("intake: session not found")

// Store persists conversation sessions keyed by patient phone number.
type Store interface {
	Get(ctx context.Context, phone string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, phone string) error
}

// MemoryStore keeps sessions in memory. Used by tests and the console chat
// mode; production uses the Redis store so sessions survive restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(ctx context.Context, phone string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[phone]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := sess
	return &copied, nil
}

// Save stores a copy of the session.
func (s *MemoryStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Phone == "" {
		return errors.New("intake: session with phone required")
	}
	s.mu.Lock()
	s.sessions[session.Phone] = *session
	s.mu.Unlock()
	return nil
}

// Delete removes the session if present.
func (s *MemoryStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	delete(s.sessions, phone)
	s.mu.Unlock()
	return nil
}
