package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/samirrijal/tripcore/internal/adapters/postgres"
	"github.com/samirrijal/tripcore/internal/pkg/config"
	"github.com/samirrijal/tripcore/internal/pkg/logging"
	"github.com/samirrijal/tripcore/migrations"
)

const trackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status>")
		os.Exit(2)
	}

	cfg, err := config.Load("tripcore-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.Pool.Exec(ctx, trackingTable); err != nil {
		slog.Error("create tracking table", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		err = up(ctx, db)
	case "down":
		err = down(ctx, db)
	case "status":
		err = status(ctx, db)
	default:
		err = fmt.Errorf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		slog.Error("migrate failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// scripts lists embedded migrations in apply order. Down scripts share the
// name of their up script with a ".down" infix.
func scripts(downScripts bool) ([]string, error) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if strings.HasSuffix(n, ".down.sql") == downScripts {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	if downScripts {
		sort.Sort(sort.Reverse(sort.StringSlice(out)))
	}
	return out, nil
}

func applied(ctx context.Context, db *postgres.DB) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func up(ctx context.Context, db *postgres.DB) error {
	files, err := scripts(false)
	if err != nil {
		return err
	}
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}

	for _, f := range files {
		if done[f] {
			slog.Debug("migration already applied", "file", f)
			continue
		}
		if err := run(ctx, db, f, `INSERT INTO schema_migrations (name) VALUES ($1)`, f); err != nil {
			return err
		}
		slog.Info("migration applied", "file", f)
	}
	return nil
}

func down(ctx context.Context, db *postgres.DB) error {
	files, err := scripts(true)
	if err != nil {
		return err
	}
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}

	for _, f := range files {
		target := strings.TrimSuffix(f, ".down.sql") + ".sql"
		if !done[target] {
			continue
		}
		if err := run(ctx, db, f, `DELETE FROM schema_migrations WHERE name = $1`, target); err != nil {
			return err
		}
		slog.Info("migration reverted", "file", target)
	}
	return nil
}

func status(ctx context.Context, db *postgres.DB) error {
	files, err := scripts(false)
	if err != nil {
		return err
	}
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}
	for _, f := range files {
		state := "pending"
		if done[f] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, f)
	}
	return nil
}

// run executes one script and its bookkeeping statement in a single transaction.
func run(ctx context.Context, db *postgres.DB, file, record, name string) error {
	data, err := migrations.FS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("exec %s: %w", file, err)
	}
	if _, err := tx.Exec(ctx, record, name); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return tx.Commit(ctx)
}
