// Package ttl provides a small in-process cache with per-entry expiry and a
// bounded size. Eviction is deterministic: the oldest insertion goes first.
package ttl

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

type entry[V any] struct {
	value    V
	storedAt time.Time
	seq      uint64
}

// Cache maps keys to values stamped with their insertion time.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        Clock
	seq        uint64
	entries    map[K]entry[V]
}

// New creates a cache. maxEntries <= 0 means unbounded; ttl <= 0 means
// entries never expire. A nil clock uses time.Now.
func New[K comparable, V any](ttl time.Duration, maxEntries int, now Clock) *Cache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[K]entry[V]),
	}
}

// Get returns the value for key if present and not expired. Expired entries
// are removed on access.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting expired entries first and then the
// oldest insertion while the cache is full.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.purgeExpiredLocked()
		for len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}

	c.seq++
	c.entries[key] = entry[V]{value: value, storedAt: c.now(), seq: c.seq}
}

// StoredAt returns the insertion time of a live entry.
func (c *Cache[K, V]) StoredAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return time.Time{}, false
	}
	return e.storedAt, true
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) expired(e entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
}

func (c *Cache[K, V]) purgeExpiredLocked() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[K, V]) evictOldestLocked() {
	var (
		oldestKey K
		oldest    entry[V]
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldest.storedAt) ||
			(e.storedAt.Equal(oldest.storedAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = k, e, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
