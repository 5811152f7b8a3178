package cache

import (
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a thread-safe cache whose entries expire after a per-entry
// time-to-live. Expired entries are removed lazily on access and eagerly by
// a background janitor.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]ttlEntry[V]

	janitor *time.Ticker
	done    chan struct{}
}

// NewTTLCache creates a TTL cache with a janitor sweeping expired entries
// once a minute. Call Close to stop the janitor.
func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items:   make(map[K]ttlEntry[V]),
		janitor: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background janitor.
func (c *TTLCache[K, V]) Close() {
	c.janitor.Stop()
	close(c.done)
}

// Set stores value under key with the given TTL. A non-positive TTL removes
// the key immediately.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		c.Delete(key)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = ttlEntry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get retrieves a value if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(entry.expiresAt) {
		// Lazy expiration; the janitor handles the rest
		c.Delete(key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Delete removes key from the cache.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, including any not yet swept
// expired ones.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

func (c *TTLCache[K, V]) sweepLoop() {
	for {
		select {
		case <-c.janitor.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *TTLCache[K, V]) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, key)
		}
	}
}
