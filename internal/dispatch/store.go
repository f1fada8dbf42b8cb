package dispatch

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// InMemorySessionStore is a concurrency-safe, in-memory SessionStore.
// It uses a map with a read-write mutex for O(1) lookups. The `now`
// function is injectable for deterministic testing.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[ChatKey]*Session

	// maxSessions limits the number of concurrent sessions.
	// Zero means unlimited.
	maxSessions int

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewInMemorySessionStore creates a ready-to-use in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[ChatKey]*Session),
		now:      time.Now,
	}
}

// SetMaxSessions configures the maximum number of concurrent sessions.
// Zero means unlimited.
func (s *InMemorySessionStore) SetMaxSessions(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = limit
}

// GetOrCreate returns the existing session for the key, or creates a new
// one if none exists. The bool return is true when a new session was created.
// If maxSessions > 0 and the limit is reached, no new session is created
// and (nil, false) is returned.
func (s *InMemorySessionStore) GetOrCreate(key ChatKey) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, false
	}

	// Enforce max sessions if configured.
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, false
	}

	id, err := generateID()
	if err != nil {
		// Surface the error in the session ID field as a last resort.
		// In practice this should never happen (requires broken OS entropy).
		id = fmt.Sprintf("err-%v", err)
	}

	now := s.now()
	sess := &Session{
		ID:           id,
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[key] = sess
	return sess, true
}

// Get returns the session for the given key, or nil if none exists.
func (s *InMemorySessionStore) Get(key ChatKey) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

// Touch updates the session's LastActiveAt timestamp to the current time.
// It is a no-op if the session does not exist.
func (s *InMemorySessionStore) Touch(key ChatKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		sess.LastActiveAt = s.now()
	}
}

// RecordTurn increments the session's turn counter and refreshes its
// activity timestamp. It is a no-op if the session does not exist.
func (s *InMemorySessionStore) RecordTurn(key ChatKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		sess.Turns++
		sess.LastActiveAt = s.now()
	}
}

// Delete removes the session for the given key. It is a no-op if the
// session does not exist.
func (s *InMemorySessionStore) Delete(key ChatKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Prune removes sessions whose idle time exceeds maxIdle and returns the
// number of sessions pruned.
func (s *InMemorySessionStore) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.LastActiveAt) > maxIdle {
			delete(s.sessions, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of active sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Range calls fn for each session. If fn returns false, iteration stops.
// The lock is held for the entire iteration, so keep fn fast.
func (s *InMemorySessionStore) Range(fn func(ChatKey, *Session) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, sess := range s.sessions {
		if !fn(key, sess) {
			return
		}
	}
}

// ActiveKeys returns a snapshot of currently active session keys.
func (s *InMemorySessionStore) ActiveKeys() map[ChatKey]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[ChatKey]struct{}, len(s.sessions))
	for key := range s.sessions {
		keys[key] = struct{}{}
	}
	return keys
}

// generateID produces a 32-character hex string from 16 random bytes.
// Returns an error if the OS entropy source is unavailable.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("dispatch: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
