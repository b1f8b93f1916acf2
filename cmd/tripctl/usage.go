package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	natsadapter "github.com/samirrijal/tripcore/internal/adapters/nats"
	"github.com/samirrijal/tripcore/internal/adapters/storage"
	"github.com/samirrijal/tripcore/internal/adapters/valkey"
	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/usecases"
	"github.com/samirrijal/tripcore/internal/pkg/config"
)

func usageCommand() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Inspect or reset the daily upstream quota counters",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the counters stored by the configured backend",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
				},
				Action: func(c *cli.Context) error {
					return withMonitor(c.Context, func(m *usecases.UsageMonitor) error {
						stats := m.GetUsageStats()
						if c.Bool("json") {
							return writeJSON(c.App.Writer, stats)
						}
						return printStats(c, stats)
					})
				},
			},
			{
				Name:  "reset",
				Usage: "Zero the counters and restart the daily window",
				Action: func(c *cli.Context) error {
					return withMonitor(c.Context, func(m *usecases.UsageMonitor) error {
						m.ResetCounters(c.Context)
						fmt.Fprintln(c.App.Writer, "usage counters reset")
						return printStats(c, m.GetUsageStats())
					})
				},
			},
			{
				Name:  "watch",
				Usage: "Stream quota warnings and resets from NATS",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nats-url",
						Usage:   "NATS server URL",
						Value:   "nats://localhost:4222",
						EnvVars: []string{"TRIPCORE_NATS_URL"},
					},
					&cli.StringFlag{
						Name:  "durable",
						Usage: "Durable consumer name; empty delivers only new events",
					},
				},
				Action: func(c *cli.Context) error {
					sub, err := natsadapter.NewSubscriber(c.String("nats-url"), c.String("durable"))
					if err != nil {
						return err
					}
					defer sub.Close()

					ctx, stop := signalContext(c.Context)
					defer stop()

					err = sub.SubscribeUsageEvents(ctx, func(_ context.Context, e domain.UsageEvent) error {
						return printEvent(c, e)
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.ErrWriter, "watching usage events, Ctrl-C to stop")
					<-ctx.Done()
					return nil
				},
			},
		},
	}
}

// withMonitor opens the configured storage backend and loads the counters from it.
func withMonitor(ctx context.Context, fn func(*usecases.UsageMonitor) error) error {
	cfg, err := config.Load("tripctl")
	if err != nil {
		return err
	}

	var vk *valkey.Client
	if cfg.Storage.Driver == "valkey" {
		vk, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			return err
		}
		defer vk.Close()
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Database.DSN(),
		Valkey:      vk,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(usecases.NewUsageMonitor(ctx, store, cfg.Usage.Limits(), usecases.WithWarnRatio(cfg.Usage.WarnRatio)))
}

func printStats(c *cli.Context, stats domain.UsageStats) error {
	names := make([]string, 0, len(stats.Categories))
	for name := range stats.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCOUNT\tLIMIT\tUSED")
	for _, name := range names {
		s := stats.Categories[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d%%\n", name, s.Count, s.Limit, s.Percentage)
	}
	fmt.Fprintf(tw, "total\t%d\t\t\n", stats.Total)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "last reset: %s\n", stats.LastReset)
	return err
}

func printEvent(c *cli.Context, e domain.UsageEvent) error {
	var err error
	switch e.Type {
	case domain.UsageEventWarning:
		_, err = fmt.Fprintf(c.App.Writer, "%s  WARN  %s at %d%% (%d/%d)\n",
			e.At.Format("15:04:05"), e.Category, e.Percentage, e.Count, e.Limit)
	case domain.UsageEventReset:
		_, err = fmt.Fprintf(c.App.Writer, "%s  RESET counters cleared\n", e.At.Format("15:04:05"))
	default:
		_, err = fmt.Fprintf(c.App.Writer, "%s  %s\n", e.At.Format("15:04:05"), e.Type)
	}
	return err
}
