package automation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, factory PageFactory, store StateStore) *SessionPool {
	t.Helper()
	pool, err := NewSessionPool(PoolOptions{
		Factory: factory,
		Store:   store,
		IdleTTL: 10 * time.Minute,
		Logger:  slog.Default(),
	})
	require.NoError(t, err)
	return pool
}

func TestSessionPool_AcquireRelease(t *testing.T) {
	factory := &fakeFactory{}
	pool := newTestPool(t, factory, nil)
	ctx := context.Background()

	sess, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "acct-a", sess.AccountRef)
	assert.False(t, sess.Authenticated)

	pool.Release(sess)

	again, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
	assert.Same(t, sess, again, "released session should be reused")
	assert.Equal(t, 1, factory.made, "no second page should be opened")
}

func TestSessionPool_BusyRejectsImmediately(t *testing.T) {
	pool := newTestPool(t, &fakeFactory{}, nil)
	ctx := context.Background()

	sess, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)

	_, err = pool.Acquire(ctx, "acct-a")
	assert.ErrorIs(t, err, ErrSessionBusy)

	// A different account is unaffected.
	other, err := pool.Acquire(ctx, "acct-b")
	require.NoError(t, err)
	require.NotNil(t, other)

	pool.Release(sess)
	_, err = pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
}

func TestSessionPool_IdleEviction(t *testing.T) {
	factory := &fakeFactory{}
	pool := newTestPool(t, factory, nil)
	ctx := context.Background()

	now := time.Now()
	pool.now = func() time.Time { return now }

	sess, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
	pool.Release(sess)

	now = now.Add(11 * time.Minute)

	fresh, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
	assert.NotSame(t, sess, fresh, "expired session should be replaced")
	assert.True(t, factory.pages[0].closed, "evicted page should be closed")
	assert.Equal(t, 2, factory.made)
}

func TestSessionPool_FactoryErrorFreesSlot(t *testing.T) {
	factory := &fakeFactory{err: errors.New("browser gone")}
	pool := newTestPool(t, factory, nil)
	ctx := context.Background()

	_, err := pool.Acquire(ctx, "acct-a")
	require.Error(t, err)

	// The failed acquire must not leave the slot stuck busy.
	factory.err = nil
	_, err = pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
}

func TestSessionPool_RestoresPersistedState(t *testing.T) {
	store := newFakeStateStore()
	store.states["acct-a"] = &SessionState{
		AccountRef: "acct-a",
		Cookies:    []Cookie{{Name: "session-token", Value: "tok"}},
		UserAgent:  "custom-agent",
		CapturedAt: time.Now(),
	}

	factory := &fakeFactory{}
	pool := newTestPool(t, factory, store)

	sess, err := pool.Acquire(context.Background(), "acct-a")
	require.NoError(t, err)

	page := factory.pages[0]
	require.Len(t, page.cookies, 1)
	assert.Equal(t, "session-token", page.cookies[0].Name)
	assert.Equal(t, "custom-agent", page.userAgent)
	assert.Equal(t, "custom-agent", sess.UserAgent)
	assert.False(t, sess.Authenticated, "restored state still needs a live check")
}

func TestSessionPool_PersistAndInvalidate(t *testing.T) {
	store := newFakeStateStore()
	factory := &fakeFactory{}
	pool := newTestPool(t, factory, store)
	ctx := context.Background()

	sess, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)

	t.Run("unauthenticated sessions are not persisted", func(t *testing.T) {
		pool.Persist(ctx, sess)
		assert.Empty(t, store.states)
	})

	t.Run("authenticated sessions persist cookies", func(t *testing.T) {
		sess.Authenticated = true
		factory.pages[0].cookies = []Cookie{{Name: "session-token", Value: "tok"}}

		pool.Persist(ctx, sess)
		require.Contains(t, store.states, "acct-a")
		assert.Len(t, store.states["acct-a"].Cookies, 1)
	})

	t.Run("invalidate closes the page and deletes state", func(t *testing.T) {
		pool.Invalidate(ctx, sess)
		assert.True(t, factory.pages[0].closed)
		assert.NotContains(t, store.states, "acct-a")

		// The slot is free again.
		_, err := pool.Acquire(ctx, "acct-a")
		require.NoError(t, err)
	})
}

func TestSessionPool_ReleaseAll(t *testing.T) {
	factory := &fakeFactory{}
	pool := newTestPool(t, factory, nil)
	ctx := context.Background()

	_, err := pool.Acquire(ctx, "acct-a")
	require.NoError(t, err)
	_, err = pool.Acquire(ctx, "acct-b")
	require.NoError(t, err)

	pool.ReleaseAll()

	for _, page := range factory.pages {
		assert.True(t, page.closed)
	}
}
