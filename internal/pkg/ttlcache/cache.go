// Package ttlcache is an in-process response cache keyed by string.
package ttlcache

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

type item struct {
	entry     domain.CacheEntry
	expiredAt time.Time
}

// Cache implements ports.ResponseCache in memory.
type Cache struct {
	store map[string]item
	lock  *sync.RWMutex
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		store: map[string]item{},
		lock:  &sync.RWMutex{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Get(_ context.Context, key string) (domain.CacheEntry, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	it, ok := c.store[key]
	if !ok {
		return domain.CacheEntry{}, false
	}

	if c.now().After(it.expiredAt) {
		return domain.CacheEntry{}, false
	}

	return it.entry, true
}

func (c *Cache) Set(_ context.Context, key string, entry domain.CacheEntry, lifeTime time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.store[key] = item{
		entry:     entry,
		expiredAt: entry.StoredAt.Add(lifeTime),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.store)
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	removed := 0
	for key, it := range c.store {
		if now.After(it.expiredAt) {
			delete(c.store, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
