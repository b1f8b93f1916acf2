// Package storage selects the KV store backend that holds the usage counters.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/samirrijal/tripcore/internal/adapters/memory"
	"github.com/samirrijal/tripcore/internal/adapters/postgres"
	"github.com/samirrijal/tripcore/internal/adapters/sqlite"
	"github.com/samirrijal/tripcore/internal/adapters/valkey"
	"github.com/samirrijal/tripcore/internal/core/ports"
)

// Options picks and parameterises a backend.
type Options struct {
	// Driver is "memory", "sqlite", "postgres" or "valkey".
	Driver      string
	SQLitePath  string
	PostgresDSN string
	// Valkey is shared with the response cache when both use it.
	Valkey *valkey.Client
}

// Backend is an opened KV store with its lifecycle hooks.
type Backend struct {
	ports.KVStore
	Driver string
	Ping   func(ctx context.Context) error
	Close  func()

	// DB is set for the postgres driver so callers can export pool stats.
	DB *postgres.DB
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	switch opts.Driver {
	case "memory":
		return &Backend{
			KVStore: memory.NewKVStore(),
			Driver:  opts.Driver,
			Ping:    func(context.Context) error { return nil },
			Close:   func() {},
		}, nil

	case "sqlite":
		s, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{
			KVStore: s,
			Driver:  opts.Driver,
			Ping:    s.Ping,
			Close:   func() { _ = s.Close() },
		}, nil

	case "postgres":
		db, err := postgres.New(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Backend{
			KVStore: postgres.NewKVStore(db),
			Driver:  opts.Driver,
			Ping:    db.Ping,
			Close:   db.Close,
			DB:      db,
		}, nil

	case "valkey":
		if opts.Valkey == nil {
			return nil, errors.New("valkey storage requires a valkey client")
		}
		return &Backend{
			KVStore: valkey.NewStore(opts.Valkey),
			Driver:  opts.Driver,
			Ping:    opts.Valkey.Ping,
			// the client is owned by the caller
			Close: func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
