// Package cache implements the bounded TTL+LRU cache shared by the price
// resolver, pool registry, and portfolio engine (spec §4.2).
//
// Eviction is insertion-order LRU, not access-order: a read past TTL is a
// miss (and removes the entry), but reading a live entry does not move it
// within the eviction order. This is deliberately different from the
// RecentAlerts ring, which is also insertion-ordered but never evicts on
// read.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     any
	insertedAt time.Time
	elem      *list.Element
}

// Cache is a key -> {value, insertedAt} map with a capacity and a TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	order    *list.List // front = oldest insertion, back = newest
	now      func() time.Time
}

// New creates a cache with the given capacity and TTL. capacity <= 0 means
// unbounded (no LRU eviction, TTL still applies).
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached value and true, or zero/false on miss or expiry.
// An expired entry is removed as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(e)
		return nil, false
	}
	return e.value, true
}

// Set inserts or replaces a value. A replace keeps the original insertion
// position unchanged only if it already existed; the capacity trim always
// evicts from the front (oldest insertion).
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.insertedAt = c.now()
		return
	}

	e := &entry{key: key, value: value, insertedAt: c.now()}
	e.elem = c.order.PushBack(e)
	c.items[key] = e

	if c.capacity > 0 && len(c.items) > c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.removeLocked(oldest.Value.(*entry))
		}
	}
}

// Delete removes a key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.removeLocked(e)
	}
}

// Len returns the current number of live entries (including not-yet-pruned
// expired ones).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Prune sweeps all expired entries. Intended to be called on a timer
// (spec §4.11, cache pruning job).
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if now.Sub(e.insertedAt) >= c.ttl {
			c.removeLocked(e)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.items, e.key)
}
