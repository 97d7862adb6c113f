package batch

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	expiry time.Time
	value  V
}

// ttlCache is a thread-safe expiring cache. It is the only shared mutable
// state in the façade and is owned exclusively by it: updates flow through
// refetch-and-set or explicit invalidation, never direct mutation of a
// cached record.
type ttlCache[V any] struct {
	entries map[string]cacheEntry[V]
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex

	// gen counts invalidations. A fetch snapshots it before going to the
	// server; if it moved by the time the result arrives, the write is stale
	// and gets dropped.
	gen uint64
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}

	c := &ttlCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go c.cleanup()

	return c
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry, exists := c.entries[key]
	if !exists {
		return zero, false
	}
	if time.Now().After(entry.expiry) {
		return zero, false
	}
	return entry.value, true
}

// generation returns the current invalidation generation, snapshotted by
// callers before a fetch and handed back to setIfCurrent.
func (c *ttlCache[V]) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// setIfCurrent stores the value unless an invalidation happened after gen was
// snapshotted. A fetch that raced a mutation loses: its result reflects
// pre-mutation server state and must not resurrect the dropped entries.
func (c *ttlCache[V]) setIfCurrent(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.entries[key] = cacheEntry[V]{
		value:  value,
		expiry: time.Now().Add(c.ttl),
	}
	return true
}

func (c *ttlCache[V]) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, key)
}

// invalidateAll drops every entry and bumps the generation, so in-flight
// fetches that started before the invalidation cannot write their results.
func (c *ttlCache[V]) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry[V])
}

func (c *ttlCache[V]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ttlCache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *ttlCache[V]) close() {
	close(c.stopCh)
}
