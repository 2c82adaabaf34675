package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

const defaultCleanupInterval = 30 * time.Second

// cacheEntry wraps a cached value with its expiry. expiresAt moves with
// sliding reads; deadline is fixed when the entry is set.
type cacheEntry struct {
	value     []byte
	exp       shared.Expiry
	deadline  time.Time
	expiresAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemoryCache implements shared.Cache in process memory. It serves
// single-instance runs and tests; instances do not share entries.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	now     func() time.Time

	stopCh    chan struct{}
	closeOnce sync.Once

	hits   atomic.Int64
	misses atomic.Int64
}

// NewInMemoryCache creates a cache and starts its expiry sweeper
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Get returns the value for key, sliding its expiry up to the deadline
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || e.isExpired(now) {
		delete(c.entries, key)
		c.misses.Add(1)
		return nil, false, nil
	}
	if e.exp.Sliding > 0 {
		e.expiresAt = now.Add(e.exp.Window(e.deadline.Sub(now)))
	}
	c.hits.Add(1)
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, exp shared.Expiry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = &cacheEntry{
		value:     append([]byte(nil), value...),
		exp:       exp,
		deadline:  now.Add(exp.TTL),
		expiresAt: now.Add(exp.Window(exp.TTL)),
	}
	return nil
}

// Invalidate removes keys
func (c *InMemoryCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// Stats returns hit and miss counts
func (c *InMemoryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the sweeper. Safe to call multiple times.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

func (c *InMemoryCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for k, e := range c.entries {
				if e.isExpired(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Ensure InMemoryCache implements Cache
var _ shared.Cache = (*InMemoryCache)(nil)
