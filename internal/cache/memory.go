package cache

import (
	"context"
	"sync"
	"time"
)

const defaultCleanupInterval = time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryCache is a thread-safe in-process TTL cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryCache creates a cache that evicts expired entries every cleanupInterval.
// A non-positive interval uses one minute.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	c := &MemoryCache{
		items: make(map[string]memoryEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.cleanup(cleanupInterval)
	return c
}

// Get returns a copy of the cached value when present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if entry.expired(c.now()) {
		c.mu.Lock()
		if current, still := c.items[key]; still && current.expired(c.now()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A non-positive ttl is a no-op.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.items[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
	return nil
}

func (c *MemoryCache) cleanup(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *MemoryCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	for key, entry := range c.items {
		if entry.expired(now) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
}
