package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenOrAddFirstArrivalWins(t *testing.T) {
	s := NewSet(100)
	now := time.Now()

	require.False(t, s.SeenOrAdd("sig1", now), "first arrival must not be seen")
	assert.True(t, s.SeenOrAdd("sig1", now), "second arrival of the same sig must be seen")
}

func TestWalletAndDexSetsAreIndependent(t *testing.T) {
	store := NewStore(100)
	now := time.Now()

	require.False(t, store.DexTxs.SeenOrAdd("sig1", now))
	// Same signature on the wallet-scoped set is a fresh arrival: the two
	// sets are disjoint by design (spec §4.7 rationale).
	assert.False(t, store.WalletTxs.SeenOrAdd("sig1", now))
}

func TestOverflowRetainsMostRecentHalf(t *testing.T) {
	s := NewSet(4)
	now := time.Now()

	s.SeenOrAdd("a", now)
	s.SeenOrAdd("b", now)
	s.SeenOrAdd("c", now)
	s.SeenOrAdd("d", now)
	s.SeenOrAdd("e", now) // triggers eviction of the oldest half

	assert.Equal(t, 2, s.Len())
	assert.False(t, s.items.Contains("a"))
	assert.False(t, s.items.Contains("b"))
	assert.True(t, s.items.Contains("d"))
	assert.True(t, s.items.Contains("e"))
}

func TestPruneRemovesOlderThanHorizon(t *testing.T) {
	s := NewSet(0)
	base := time.Now()

	s.SeenOrAdd("old", base)
	s.SeenOrAdd("new", base.Add(23*time.Hour))

	removed := s.Prune(base.Add(25*time.Hour), 24*time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}
