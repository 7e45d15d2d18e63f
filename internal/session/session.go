// Package session maps external users to NLU conversation state.
//
// A Store holds at most one active Session per user. Sessions are created on
// the first unmatched message, replaced wholesale after every NLU turn, and
// deleted when the engine marks the conversation done or when they idle past
// the configured TTL. A deleted id keeps reporting ErrSessionDeleted for a
// while so callers can tell it apart from an id that never existed.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
)

var (
	// ErrSessionNotFound is returned for ids that were never issued (or whose tombstone expired).
	ErrSessionNotFound = fmt.Errorf("session: %w", domainerrors.ErrNotFound)

	// ErrSessionDeleted is returned for ids that existed and were deleted.
	ErrSessionDeleted = fmt.Errorf("session: %w", domainerrors.ErrSessionDeleted)

	errEmptyUserID = domainerrors.NewValidationError("user_id", "must not be empty")
)

// Session is a snapshot of one user's conversation state.
type Session struct {
	ID        string
	UserID    string
	Context   nlu.Context
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the session persistence contract used by the turn driver.
// Update replaces the context wholesale (last-write-wins).
type Store interface {
	FindOrCreate(ctx context.Context, userID string) (string, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, sessionID string, c nlu.Context) error
	Delete(ctx context.Context, sessionID string) error
}

// Evictor is implemented by stores that support idle eviction.
type Evictor interface {
	// Evict deletes sessions not updated since olderThan and returns how many were removed.
	Evict(ctx context.Context, olderThan time.Time) (int, error)
	// Count returns the number of active sessions.
	Count(ctx context.Context) (int, error)
}

// IDGenerator returns a new unique session id.
type IDGenerator func() string

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}
