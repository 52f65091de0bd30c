package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bookproxy/internal/config"
)

func newTestRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	store, err := NewRedisStore(&config.RedisStoreConfig{
		URL: "redis://" + mr.Addr(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := &ProxySession{
		ID:             "sess-1",
		TargetHost:     "hotels.example.com",
		TargetBase:     "https://hotels.example.com",
		CheckoutPath:   "/reservation?x=1",
		Autobook:       true,
		AutobookEngine: EngineB,
	}

	require.NoError(t, store.Insert(ctx, sess))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestRedisStore_GetUnknown(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_KeysHaveNoTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &ProxySession{ID: "s1", TargetHost: "t.example"}))

	assert.True(t, mr.Exists("bp:session:s1"))
	assert.Zero(t, mr.TTL("bp:session:s1"))
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(&config.RedisStoreConfig{URL: "://bad"}, nil)
	assert.Error(t, err)
}
