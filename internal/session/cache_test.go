package session

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCache_PutGet(t *testing.T) {
	c := newReadCache(10, time.Hour)

	sess := &ProxySession{ID: "s1", TargetHost: "t.example"}
	c.put(sess)

	got, expired := c.get("s1")
	require.NotNil(t, got)
	assert.False(t, expired)
	assert.Equal(t, sess, got)
}

func TestReadCache_MissVsExpired(t *testing.T) {
	c := newReadCache(10, 10*time.Millisecond)

	got, expired := c.get("absent")
	assert.Nil(t, got)
	assert.False(t, expired)

	c.put(&ProxySession{ID: "s1", TargetHost: "t.example"})
	time.Sleep(20 * time.Millisecond)

	got, expired = c.get("s1")
	assert.Nil(t, got)
	assert.True(t, expired)

	// The expired entry is removed; a second probe is a plain miss.
	got, expired = c.get("s1")
	assert.Nil(t, got)
	assert.False(t, expired)
}

func TestReadCache_EvictsSingleOldest(t *testing.T) {
	c := newReadCache(3, time.Hour)

	for i := 0; i < 3; i++ {
		c.put(&ProxySession{ID: "s" + strconv.Itoa(i), TargetHost: "t.example"})
		time.Sleep(2 * time.Millisecond)
	}

	c.put(&ProxySession{ID: "s3", TargetHost: "t.example"})

	assert.Equal(t, 3, c.len())

	got, _ := c.get("s0")
	assert.Nil(t, got, "oldest entry should be evicted")

	for _, id := range []string{"s1", "s2", "s3"} {
		got, _ := c.get(id)
		assert.NotNil(t, got, id)
	}
}

func TestReadCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newReadCache(2, time.Hour)

	c.put(&ProxySession{ID: "s1", TargetHost: "t.example"})
	c.put(&ProxySession{ID: "s2", TargetHost: "t.example"})
	c.put(&ProxySession{ID: "s2", TargetHost: "t.example"})

	assert.Equal(t, 2, c.len())
	got, _ := c.get("s1")
	assert.NotNil(t, got)
}
