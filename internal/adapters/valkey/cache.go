package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

const (
	keyPrefix      = "tripcore:"
	cachePrefix    = keyPrefix + "cache:"
	kvPrefix       = keyPrefix + "kv:"
	minCacheExpiry = time.Second
)

// Client wraps a Valkey (Redis-compatible) connection shared by the cache and the KV store.
type Client struct {
	client valkey.Client
}

// New creates a new Valkey client.
func New(addr string) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Client{client: client}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Client) Close() {
	c.client.Close()
}

// Cache implements ports.ResponseCache on Valkey so several API replicas share results.
type Cache struct {
	c *Client
}

func NewCache(c *Client) *Cache {
	return &Cache{c: c}
}

// Get returns the stored entry. Transport errors read as a miss.
func (r *Cache) Get(ctx context.Context, key string) (domain.CacheEntry, bool) {
	cmd := r.c.client.Do(ctx, r.c.client.B().Get().Key(cachePrefix+key).Build())
	b, err := cmd.AsBytes()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			slog.Warn("valkey cache get failed", "key", key, "error", err)
		}
		return domain.CacheEntry{}, false
	}
	entry, err := decodeEntry(b)
	if err != nil {
		return domain.CacheEntry{}, false
	}
	return entry, true
}

// Set stores entry with an expiry of lifeTime. Failures are logged.
func (r *Cache) Set(ctx context.Context, key string, entry domain.CacheEntry, lifeTime time.Duration) {
	data, err := encodeEntry(entry)
	if err != nil {
		return
	}
	if lifeTime < minCacheExpiry {
		lifeTime = minCacheExpiry
	}
	cmd := r.c.client.Do(ctx,
		r.c.client.B().Set().Key(cachePrefix+key).Value(string(data)).Ex(lifeTime).Build(),
	)
	if err := cmd.Error(); err != nil {
		slog.Warn("valkey cache set failed", "key", key, "error", err)
	}
}

// Store implements ports.KVStore on Valkey without expiry.
type Store struct {
	c *Client
}

func NewStore(c *Client) *Store {
	return &Store{c: c}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.c.client.Do(ctx, s.c.client.B().Get().Key(kvPrefix+key).Build())
	b, err := cmd.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.c.client.Do(ctx, s.c.client.B().Set().Key(kvPrefix+key).Value(string(value)).Build())
	return cmd.Error()
}

func encodeEntry(e domain.CacheEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(b []byte) (domain.CacheEntry, error) {
	var e domain.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.CacheEntry{}, err
	}
	if e.StoredAt.IsZero() {
		return domain.CacheEntry{}, fmt.Errorf("cache entry without timestamp")
	}
	return e, nil
}
