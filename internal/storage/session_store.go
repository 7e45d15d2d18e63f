package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
	"github.com/garyellow/messenger-nlu-bot/internal/session"
)

var wrapSession = domainerrors.NewWrapper("storage", "session")

// SessionStore persists sessions in SQLite so conversations survive restarts.
// It implements session.Store and session.Evictor.
type SessionStore struct {
	db           *DB
	tombstoneTTL time.Duration
	newID        session.IDGenerator
	now          func() time.Time

	// Serializes FindOrCreate so two first messages from one user
	// cannot race between the lookup and the insert.
	createMu sync.Mutex
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionIDGenerator overrides session id generation.
func WithSessionIDGenerator(gen session.IDGenerator) SessionStoreOption {
	return func(s *SessionStore) { s.newID = gen }
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// WithSessionTombstoneTTL sets how long deleted ids report session.ErrSessionDeleted.
func WithSessionTombstoneTTL(ttl time.Duration) SessionStoreOption {
	return func(s *SessionStore) { s.tombstoneTTL = ttl }
}

// NewSessionStore creates a session store on top of db.
func NewSessionStore(db *DB, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		db:           db,
		tombstoneTTL: time.Hour,
		newID:        session.NewID,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOrCreate returns the user's live session id, inserting a new one if needed.
func (s *SessionStore) FindOrCreate(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domainerrors.NewValidationError("user_id", "must not be empty")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	var id string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE user_id = ? AND deleted_at IS NULL`, userID).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", wrapSession.Wrap(err, "lookup by user")
	}

	id, err = s.unusedID(ctx)
	if err != nil {
		return "", err
	}

	now := unixMilli(s.now())
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, context, created_at, updated_at) VALUES (?, ?, '{}', ?, ?)`,
		id, userID, now, now)
	if err != nil {
		return "", wrapSession.Wrap(err, "insert")
	}
	return id, nil
}

// unusedID draws ids until one matches no live or tombstoned row.
func (s *SessionStore) unusedID(ctx context.Context) (string, error) {
	for {
		id := s.newID()
		var exists int
		err := s.db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return "", wrapSession.Wrap(err, "check id")
		}
		if exists == 0 {
			return id, nil
		}
	}
}

// Get loads a live session.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	var (
		userID, raw          string
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT user_id, context, created_at, updated_at, deleted_at FROM sessions WHERE id = ?`,
		sessionID).Scan(&userID, &raw, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, wrapSession.Wrap(err, "get")
	}
	if deletedAt.Valid {
		return nil, session.ErrSessionDeleted
	}

	c, err := nlu.UnmarshalContext([]byte(raw))
	if err != nil {
		return nil, wrapSession.Wrapf(err, "decode context for %s", sessionID)
	}

	return &session.Session{
		ID:        sessionID,
		UserID:    userID,
		Context:   c,
		CreatedAt: fromUnixMilli(createdAt),
		UpdatedAt: fromUnixMilli(updatedAt),
	}, nil
}

// Update replaces the stored context wholesale.
func (s *SessionStore) Update(ctx context.Context, sessionID string, c nlu.Context) error {
	data, err := nlu.MarshalContext(c)
	if err != nil {
		return wrapSession.Wrap(err, "encode context")
	}

	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE sessions SET context = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(data), unixMilli(s.now()), sessionID)
	if err != nil {
		return wrapSession.Wrap(err, "update")
	}
	return s.checkAffected(ctx, res, sessionID)
}

// Delete marks the session deleted and keeps the row as a tombstone.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE sessions SET deleted_at = ?, context = '{}' WHERE id = ? AND deleted_at IS NULL`,
		unixMilli(s.now()), sessionID)
	if err != nil {
		return wrapSession.Wrap(err, "delete")
	}
	return s.checkAffected(ctx, res, sessionID)
}

// checkAffected maps a zero-row write to the not-found or deleted sentinel.
func (s *SessionStore) checkAffected(ctx context.Context, res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSession.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	var deleted int
	err = s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ? AND deleted_at IS NOT NULL`, sessionID).Scan(&deleted)
	if err != nil {
		return wrapSession.Wrap(err, "check tombstone")
	}
	if deleted > 0 {
		return session.ErrSessionDeleted
	}
	return session.ErrSessionNotFound
}

// Evict tombstones live sessions idle since olderThan and purges expired tombstones.
func (s *SessionStore) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	now := unixMilli(s.now())
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE sessions SET deleted_at = ?, context = '{}' WHERE deleted_at IS NULL AND updated_at < ?`,
		now, unixMilli(olderThan))
	if err != nil {
		return 0, wrapSession.Wrap(err, "evict idle")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, wrapSession.Wrap(err, "rows affected")
	}

	cutoff := unixMilli(s.now().Add(-s.tombstoneTTL))
	if _, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff); err != nil {
		return int(removed), fmt.Errorf("purge tombstones: %w", err)
	}
	return int(removed), nil
}

// Count returns the number of live sessions.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, wrapSession.Wrap(err, "count")
	}
	return n, nil
}

var (
	_ session.Store   = (*SessionStore)(nil)
	_ session.Evictor = (*SessionStore)(nil)
)
