// Package lru is a small thread-safe LRU cache whose entries carry a version
// stamp. A lookup with a different version is a miss, so callers can key
// parsed documents by path and stamp them with the blob SHA or mtime they
// were parsed from.
package lru

import "sync"

type entry[K comparable, V any] struct {
	key     K
	version string
	val     V
	prev    *entry[K, V]
	next    *entry[K, V]
}

// Cache holds at most capacity entries, evicting the least recently used.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*entry[K, V]
	root     entry[K, V] // sentinel; root.next is most recent
	hits     uint64
	misses   uint64
}

// New creates a cache. Panics if capacity < 1.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}
	c := &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*entry[K, V], capacity),
	}
	c.root.next = &c.root
	c.root.prev = &c.root
	return c
}

// Get returns the value stored for key at version. A stale version evicts
// the entry.
func (c *Cache[K, V]) Get(key K, version string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok && e.version != version {
		c.unlink(e)
		delete(c.items, key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.unlink(e)
	c.pushFront(e)
	return e.val, true
}

// Put stores val for key at version and reports whether another key was
// evicted to make room.
func (c *Cache[K, V]) Put(key K, version string, val V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.version = version
		e.val = val
		c.unlink(e)
		c.pushFront(e)
		return false
	}

	evicted := false
	if len(c.items) >= c.capacity {
		victim := c.root.prev
		c.unlink(victim)
		delete(c.items, victim.key)
		evicted = true
	}
	e := &entry[K, V]{key: key, version: version, val: val}
	c.items[key] = e
	c.pushFront(e)
	return evicted
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if ok {
		c.unlink(e)
		delete(c.items, key)
	}
	return ok
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the hit and miss counts since creation.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V], c.capacity)
	c.root.next = &c.root
	c.root.prev = &c.root
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}
