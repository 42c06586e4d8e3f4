package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSetMiss(t *testing.T) {
	c := New(10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(10, time.Minute)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.Set("a", "v")
	fakeNow = fakeNow.Add(2 * time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok, "entry older than 2x... should be expired past a single TTL window")
	assert.Equal(t, 0, c.Len(), "expired read removes the entry")
}

func TestCacheCapacityEvictsOldestInsertion(t *testing.T) {
	c := New(3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Read "a" repeatedly -- LRU-by-insertion must NOT treat this as a
	// recency bump (spec §9: insertion-order, not access-order).
	c.Get("a")
	c.Get("a")

	c.Set("d", 4) // capacity exceeded, must evict "a" (oldest insertion)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest insertion must be evicted even though it was just read")

	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %s should still be present", k)
	}
}

func TestCachePrune(t *testing.T) {
	c := New(0, time.Minute)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.Set("a", 1)
	fakeNow = fakeNow.Add(2 * time.Minute)
	c.Set("b", 2) // fresh

	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestCacheDelete(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
