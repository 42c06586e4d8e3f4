// Package dedup implements the in-memory half of the seen-transaction
// store (spec §4.7): two disjoint capped sets, seen_dex_txs and
// seen_wallet_txs, each with half-retention overflow eviction.
//
// Built in the teacher's plain struct+mutex idiom (no pack file
// implements transaction dedup directly); the set type itself is
// deckarep/golang-set/v2 rather than a hand-rolled map[string]struct{},
// since the teacher's go.mod already carries it (indirect, via
// go-ethereum) and it reads cleanly at call sites.
package dedup

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Set is a capped, insertion-ordered set of transaction signatures. On
// overflow it retains the most recently added half (spec §4.7).
type Set struct {
	mu       sync.Mutex
	cap      int
	items    mapset.Set[string]
	order    []string // insertion order, parallel to items
	addedAt  map[string]time.Time
}

// NewSet creates a Set with the given capacity.
func NewSet(capacity int) *Set {
	return &Set{
		cap:     capacity,
		items:   mapset.NewSet[string](),
		addedAt: make(map[string]time.Time),
	}
}

// SeenOrAdd reports whether sig was already present; if not, it is
// inserted and false is returned. Per spec §4.6 "persist sig -> now to
// the seen-tx store before any async enrichment", the insertion
// happens unconditionally before this call returns.
func (s *Set) SeenOrAdd(sig string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items.Contains(sig) {
		return true
	}
	s.items.Add(sig)
	s.order = append(s.order, sig)
	s.addedAt[sig] = now

	if s.cap > 0 && len(s.order) > s.cap {
		s.evictOldestHalfLocked()
	}
	return false
}

// evictOldestHalfLocked drops the oldest half of entries, keeping the
// most recently added half (spec §4.7 "retain the most recently added
// half"). Caller must hold s.mu.
func (s *Set) evictOldestHalfLocked() {
	keep := len(s.order) / 2
	drop := s.order[:len(s.order)-keep]
	s.order = append([]string(nil), s.order[len(s.order)-keep:]...)
	for _, sig := range drop {
		s.items.Remove(sig)
		delete(s.addedAt, sig)
	}
}

// Prune removes entries older than the given horizon (the durable
// mirror enforces the real 24h cutoff; this bounds in-memory growth
// between capacity-triggered evictions too).
func (s *Set) Prune(now time.Time, horizon time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, sig := range s.order {
		if now.Sub(s.addedAt[sig]) >= horizon {
			s.items.Remove(sig)
			delete(s.addedAt, sig)
			removed++
			continue
		}
		kept = append(kept, sig)
	}
	s.order = kept
	return removed
}

// Len returns the current number of tracked signatures.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Cardinality()
}

// Store is the pair of disjoint sets named in spec §4.7: a transaction
// may be relevant both as a pool trade and as a wallet movement, and a
// single set would suppress the second class.
type Store struct {
	DexTxs    *Set
	WalletTxs *Set
}

// NewStore constructs a Store with the given per-set capacity.
func NewStore(capacityPerSet int) *Store {
	return &Store{
		DexTxs:    NewSet(capacityPerSet),
		WalletTxs: NewSet(capacityPerSet),
	}
}
