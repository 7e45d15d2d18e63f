package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
	"github.com/garyellow/messenger-nlu-bot/internal/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(setupTestDB(t))

	id, err := store.FindOrCreate(ctx, "U1")
	require.NoError(t, err)

	again, err := store.FindOrCreate(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "U1", sess.UserID)
	assert.Empty(t, sess.Context)

	require.NoError(t, store.Update(ctx, id, nlu.Context{"slot": "x", "n": 2}))
	require.NoError(t, store.Update(ctx, id, nlu.Context{"slot": "y"}))

	sess, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nlu.Context{"slot": "y"}, sess.Context)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, session.ErrSessionDeleted)
	assert.ErrorIs(t, store.Update(ctx, id, nlu.Context{}), session.ErrSessionDeleted)
	assert.ErrorIs(t, store.Delete(ctx, id), session.ErrSessionDeleted)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.ErrorIs(t, store.Update(ctx, "nope", nlu.Context{}), session.ErrSessionNotFound)

	next, err := store.FindOrCreate(ctx, "U1")
	require.NoError(t, err)
	assert.NotEqual(t, id, next, "a deleted id is never reissued")
}

func TestSessionStore_EmptyUser(t *testing.T) {
	_, err := NewSessionStore(setupTestDB(t)).FindOrCreate(context.Background(), "")
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestSessionStore_SkipsTombstonedIDs(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "a", "b"}
	next := 0
	store := NewSessionStore(setupTestDB(t), WithSessionIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	first, err := store.FindOrCreate(ctx, "U1")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, first))

	second, err := store.FindOrCreate(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestSessionStore_ConcurrentFindOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(setupTestDB(t))

	const workers = 20
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Go(func() {
			id, err := store.FindOrCreate(ctx, "U1")
			if err == nil {
				results[i] = id
			}
		})
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionStore_Evict(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := NewSessionStore(setupTestDB(t),
		WithSessionClock(clock.Now),
		WithSessionTombstoneTTL(time.Hour))

	idle, _ := store.FindOrCreate(ctx, "idle")
	clock.Advance(40 * time.Minute)
	fresh, _ := store.FindOrCreate(ctx, "fresh")

	removed, err := store.Evict(ctx, clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, idle)
	require.ErrorIs(t, err, session.ErrSessionDeleted)
	_, err = store.Get(ctx, fresh)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	require.NoError(t, store.Update(ctx, fresh, nlu.Context{"keep": true}))
	_, err = store.Evict(ctx, clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)

	_, err = store.Get(ctx, idle)
	assert.ErrorIs(t, err, session.ErrSessionNotFound, "expired tombstone reads as never issued")

	n, _ := store.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestSessionStore_WithJanitor(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(setupTestDB(t))
	_, _ = store.FindOrCreate(ctx, "U1")

	j := session.NewJanitor(store, time.Nanosecond, time.Hour, nil)
	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, 1, j.Sweep(ctx))
}
