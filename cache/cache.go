// Package cache provides a small, deterministic TTL+LRU cache.
//
// The stabilized-search determinism guarantee needs a cache where a Set is
// always observable by the next Get within TTL. Probabilistic-admission
// caches cannot promise that, so this one is a plain mutex-guarded map with
// explicit LRU eviction and a size ceiling.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded TTL+LRU cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	now      func() time.Time
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// New creates a cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the value for key if present and not expired. Expired entries
// are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

// Set stores a value under key for ttl, evicting the least recently used
// entry if the cache is full.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expires})
	c.entries[key] = el
}

// Invalidate drops a single key if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*list.Element
	for key, el := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			stale = append(stale, el)
		}
	}
	for _, el := range stale {
		c.removeLocked(el)
	}
}

// Len returns the number of live entries, expired ones included until they
// are touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	delete(c.entries, ent.key)
	c.order.Remove(el)
}
