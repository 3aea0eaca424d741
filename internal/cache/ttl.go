package cache

import (
	"sync"
	"time"
)

// TTL is a capacity- and time-bounded key/value store. A read returns only
// entries younger than the freshness window; stale entries count as misses
// and are dropped lazily. Once capacity is reached, inserting a new key
// evicts the least recently used entry.
//
// Population on miss is the caller's job and is deliberately not
// single-flight: two concurrent misses on one key may both fetch and both
// write. Writes are idempotent, so this duplicates work without corrupting
// state.
type TTL[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	maxEntries int
	ttl        time.Duration
	stats      Stats
}

type entry[V any] struct {
	value    V
	expires  time.Time
	accessed time.Time
}

// Stats counts cache traffic since construction.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewTTL creates a cache holding at most maxEntries values, each fresh for
// ttl after its last Set.
func NewTTL[V any](maxEntries int, ttl time.Duration) *TTL[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TTL[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the cached value for key if present and fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	if time.Now().After(e.expires) {
		delete(c.entries, key)
		c.stats.Misses++
		var zero V
		return zero, false
	}

	e.accessed = time.Now()
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, replacing any prior entry and restarting its
// freshness window.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[key] = &entry[V]{
		value:    value,
		expires:  now.Add(c.ttl),
		accessed: now,
	}
}

// Len returns the number of stored entries, including any not yet reaped
// stale ones.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the traffic counters.
func (c *TTL[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evictLRU removes the least recently accessed entry. Caller holds the lock.
func (c *TTL[V]) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range c.entries {
		if first || e.accessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.accessed
			first = false
		}
	}

	if !first {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}
