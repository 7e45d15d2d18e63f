package session

import (
	"context"
	"sync"
	"time"

	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
)

// MemoryStore is an in-process Store. State is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session // sessionID -> session
	byUser     map[string]string   // userID -> sessionID
	tombstones map[string]time.Time

	tombstoneTTL time.Duration
	newID        IDGenerator
	now          func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen IDGenerator) MemoryOption {
	return func(s *MemoryStore) {
		s.newID = gen
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithTombstoneTTL sets how long deleted ids report ErrSessionDeleted.
// Zero keeps tombstones until the next Evict sweep after deletion.
func WithTombstoneTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.tombstoneTTL = ttl
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:     make(map[string]*Session),
		byUser:       make(map[string]string),
		tombstones:   make(map[string]time.Time),
		tombstoneTTL: time.Hour,
		newID:        NewID,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOrCreate returns the user's active session id, creating one with an empty context if needed.
func (s *MemoryStore) FindOrCreate(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUser[userID]; ok {
		return id, nil
	}

	id := s.newID()
	for {
		_, live := s.sessions[id]
		_, dead := s.tombstones[id]
		if !live && !dead {
			break
		}
		id = s.newID()
	}

	now := s.now()
	s.sessions[id] = &Session{
		ID:        id,
		UserID:    userID,
		Context:   nlu.Context{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byUser[userID] = id
	return id, nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, s.missingErrLocked(sessionID)
	}
	out := *sess
	out.Context = sess.Context.Clone()
	return &out, nil
}

// Update replaces the session context wholesale.
func (s *MemoryStore) Update(_ context.Context, sessionID string, c nlu.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return s.missingErrLocked(sessionID)
	}
	sess.Context = c.Clone()
	sess.UpdatedAt = s.now()
	return nil
}

// Delete removes the session and leaves a tombstone.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return s.missingErrLocked(sessionID)
	}
	s.deleteLocked(sess)
	return nil
}

// Evict deletes sessions not updated since olderThan and drops expired tombstones.
func (s *MemoryStore) Evict(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, sess := range s.sessions {
		if sess.UpdatedAt.Before(olderThan) {
			s.deleteLocked(sess)
			removed++
		}
	}

	cutoff := s.now().Add(-s.tombstoneTTL)
	for id, deletedAt := range s.tombstones {
		if deletedAt.Before(cutoff) {
			delete(s.tombstones, id)
		}
	}
	return removed, nil
}

// Count returns the number of active sessions.
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Stats returns active and tombstoned session counts.
func (s *MemoryStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"active":  len(s.sessions),
		"deleted": len(s.tombstones),
	}
}

func (s *MemoryStore) deleteLocked(sess *Session) {
	delete(s.sessions, sess.ID)
	if s.byUser[sess.UserID] == sess.ID {
		delete(s.byUser, sess.UserID)
	}
	s.tombstones[sess.ID] = s.now()
}

func (s *MemoryStore) missingErrLocked(sessionID string) error {
	if _, ok := s.tombstones[sessionID]; ok {
		return ErrSessionDeleted
	}
	return ErrSessionNotFound
}
