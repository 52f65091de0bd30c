package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bookproxy/internal/config"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()

	store, err := NewSQLiteStore(&config.SQLiteStoreConfig{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &ProxySession{
		ID:             "sess-1",
		TargetHost:     "hotels.example.com",
		TargetBase:     "https://hotels.example.com",
		CheckoutPath:   "/en/reservation/abc123?checkin=2026-03-01",
		Cookies:        "PHPSESSID=xyz",
		Autobook:       true,
		AutobookEngine: EngineA,
	}

	require.NoError(t, store.Insert(ctx, sess))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSQLiteStore_InsertInvalid(t *testing.T) {
	store := newTestSQLiteStore(t)

	err := store.Insert(context.Background(), &ProxySession{TargetHost: "t.example"})
	assert.ErrorIs(t, err, ErrInvalidSession)

	err = store.Insert(context.Background(), &ProxySession{
		ID:             "s1",
		TargetHost:     "t.example",
		Autobook:       true,
		AutobookEngine: Engine("bogus"),
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSQLiteStore_PurgeOlderThan(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &ProxySession{ID: "old", TargetHost: "t.example"}))
	require.NoError(t, store.Insert(ctx, &ProxySession{ID: "new", TargetHost: "t.example"}))

	purger, ok := store.(interface {
		PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
	})
	require.True(t, ok)

	// Nothing is older than an hour yet.
	removed, err := purger.PurgeOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// A negative age moves the cutoff into the future and removes all.
	removed, err = purger.PurgeOlderThan(ctx, -time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
