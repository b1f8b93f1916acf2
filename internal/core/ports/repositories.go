package ports

import (
	"context"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// KVStore persists small opaque values by key.
// Get returns domain.ErrNotFound when the key has never been written.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ResponseCache stores processed upstream responses.
// Freshness is decided by the caller from CacheEntry.StoredAt; ttl only bounds retention.
type ResponseCache interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, bool)
	Set(ctx context.Context, key string, entry domain.CacheEntry, ttl time.Duration)
}
