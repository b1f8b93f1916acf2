package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
)

// FetcherConfig describes one cached upstream backend.
type FetcherConfig[P, T any] struct {
	// Name prefixes every cache key.
	Name string
	// Category is charged on the usage monitor per upstream call. Empty means untracked.
	Category string
	TTL      time.Duration
	Key      func(P) string
	// Valid rejects params that must not reach the backend. Nil accepts everything.
	Valid func(P) bool
	// Precheck runs before any network call, e.g. to report missing credentials.
	Precheck func() error
	Fetch    func(ctx context.Context, params P) (T, error)
	// Empty is returned for invalid params and degraded failures.
	Empty T
}

// CachedFetcher is a read-through, time-boxed cache in front of an upstream API.
type CachedFetcher[P, T any] struct {
	cfg   FetcherConfig[P, T]
	cache ports.ResponseCache
	usage ports.UsageTracker
	now   func() time.Time
	log   *slog.Logger
}

// NewCachedFetcher wires a backend to a cache and an optional usage tracker.
func NewCachedFetcher[P, T any](cfg FetcherConfig[P, T], cache ports.ResponseCache, usage ports.UsageTracker) *CachedFetcher[P, T] {
	return &CachedFetcher[P, T]{
		cfg:   cfg,
		cache: cache,
		usage: usage,
		now:   time.Now,
		log:   slog.Default().With("backend", cfg.Name),
	}
}

// WithClock overrides the freshness clock.
func (f *CachedFetcher[P, T]) WithClock(now func() time.Time) *CachedFetcher[P, T] {
	f.now = now
	return f
}

// Name returns the backend name used in cache keys.
func (f *CachedFetcher[P, T]) Name() string { return f.cfg.Name }

// FetchCached returns a fresh cached result or calls the backend.
// Backend failures degrade to the empty result with a nil error, except
// authorization failures which are returned.
func (f *CachedFetcher[P, T]) FetchCached(ctx context.Context, params P) (T, error) {
	key := f.cfg.Name + ":" + f.cfg.Key(params)

	if f.cache != nil {
		if entry, ok := f.cache.Get(ctx, key); ok && entry.Fresh(f.now(), f.cfg.TTL) {
			var cached T
			if err := json.Unmarshal(entry.Value, &cached); err == nil {
				metrics.CacheHits.WithLabelValues(f.cfg.Name).Inc()
				return cached, nil
			}
		}
	}
	metrics.CacheMisses.WithLabelValues(f.cfg.Name).Inc()

	if f.cfg.Valid != nil && !f.cfg.Valid(params) {
		return f.cfg.Empty, nil
	}

	if f.cfg.Precheck != nil {
		if err := f.cfg.Precheck(); err != nil {
			return f.cfg.Empty, err
		}
	}

	start := time.Now()
	result, err := f.cfg.Fetch(ctx, params)
	metrics.ObserveUpstream(f.cfg.Name, start, err)

	if f.cfg.Category != "" && f.usage != nil {
		f.usage.TrackRequest(ctx, f.cfg.Category)
	}

	if err != nil {
		if errors.Is(err, domain.ErrUpstreamAuthorization) {
			f.log.Error("upstream rejected credentials", "error", err)
			return f.cfg.Empty, err
		}
		f.log.Warn("upstream fetch failed, returning empty result", "key", key, "error", err)
		return f.cfg.Empty, nil
	}

	if f.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			f.cache.Set(ctx, key, domain.CacheEntry{Value: data, StoredAt: f.now()}, f.cfg.TTL)
		}
	}

	return result, nil
}
