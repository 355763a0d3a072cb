// ABOUTME: Thread-safe TTL cache for idempotent request handling.
// ABOUTME: Reserves a key while work is in flight, then remembers the result for replays.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Status describes what Reserve found for a key.
type Status int

const (
	// StatusReserved means the key was unused and is now held by the caller.
	StatusReserved Status = iota
	// StatusPending means another caller holds the key and has not completed.
	StatusPending
	// StatusDone means the key completed earlier; the stored value is returned.
	StatusDone
)

// cacheEntry stores the timestamp, result, and list element for a cached key.
type cacheEntry[V any] struct {
	timestamp time.Time
	done      bool
	value     V
	element   *list.Element
}

// Cache provides a thread-safe, TTL-based, size-limited map from idempotency
// keys to results. Uses a doubly-linked list to maintain insertion order for
// O(1) eviction.
type Cache[V any] struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry[V]
	order   *list.List // List of keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a new cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	c := &Cache[V]{
		seen:    make(map[string]*cacheEntry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the completed value for key if it exists and has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry, ok := c.seen[key]
	if !ok || !entry.done || c.expired(entry, time.Now()) {
		return zero, false
	}
	return entry.value, true
}

// Reserve atomically claims key for the caller. When the key is already held
// or completed, the existing state is reported instead and nothing changes.
// A reserved key must be finished with Complete or Release.
func (c *Cache[V]) Reserve(key string) (V, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if entry, ok := c.seen[key]; ok && !c.expired(entry, time.Now()) {
		if entry.done {
			return entry.value, StatusDone
		}
		return zero, StatusPending
	}

	c.putLocked(key, &cacheEntry[V]{})
	return zero, StatusReserved
}

// Complete stores the result for key and starts its TTL.
func (c *Cache[V]) Complete(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.putLocked(key, &cacheEntry[V]{done: true, value: value})
}

// Release drops a reservation so the key can be retried.
// Completed keys are left untouched.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if !ok || entry.done {
		return
	}
	c.order.Remove(entry.element)
	delete(c.seen, key)
}

// Len returns the number of tracked keys, including expired ones not yet cleaned up.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

func (c *Cache[V]) expired(entry *cacheEntry[V], now time.Time) bool {
	return now.Sub(entry.timestamp) >= c.ttl
}

// putLocked inserts or replaces key, moving it to the back of the eviction order.
// Must be called with mu held.
func (c *Cache[V]) putLocked(key string, entry *cacheEntry[V]) {
	entry.timestamp = time.Now()

	if existing, ok := c.seen[key]; ok {
		entry.element = existing.element
		c.order.MoveToBack(entry.element)
		c.seen[key] = entry
		return
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	entry.element = c.order.PushBack(key)
	c.seen[key] = entry
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held. O(1) operation using linked list.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if c.expired(entry, now) {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
