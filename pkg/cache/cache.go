package cache

import (
	"sync"
	"time"
)

const defaultJanitorInterval = time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a concurrency-safe in-memory cache with per-entry TTLs.
// Expired entries are removed lazily on access and periodically by a
// janitor goroutine. The zero value is not usable; construct with New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	janitorInterval time.Duration
}

// WithJanitorInterval sets how often the background janitor scans for
// expired entries. Zero or negative disables the janitor; expired
// entries are then only removed lazily on Get.
func WithJanitorInterval(d time.Duration) Option {
	return func(c *config) {
		c.janitorInterval = d
	}
}

// New creates a cache for values of type V and starts its janitor.
func New[V any](opts ...Option) *Cache[V] {
	cfg := config{janitorInterval: defaultJanitorInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		stop:    make(chan struct{}),
	}
	if cfg.janitorInterval > 0 {
		go c.janitor(cfg.janitorInterval)
	}
	return c
}

// Get returns the value stored under key. The second return is false
// when the key is absent or its entry has expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry with a live one.
		if cur, ok := c.entries[key]; ok && cur.expired(time.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL. A TTL of zero or less
// stores the entry without expiry.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key from the cache. Deleting an absent key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Len reports the number of stored entries, including entries that
// have expired but not yet been reaped.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor. The cache remains usable after Close but no
// longer reaps expired entries in the background. Close is idempotent.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reap()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) reap() {
	now := time.Now()
	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
