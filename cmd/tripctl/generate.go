package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/samirrijal/tripcore/internal/adapters/generation"
	"github.com/samirrijal/tripcore/internal/adapters/googlemaps"
	"github.com/samirrijal/tripcore/internal/adapters/memory"
	"github.com/samirrijal/tripcore/internal/adapters/ticketmaster"
	"github.com/samirrijal/tripcore/internal/core/usecases"
	"github.com/samirrijal/tripcore/internal/pkg/config"
	"github.com/samirrijal/tripcore/internal/pkg/ttlcache"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a trip plan against the configured generation backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "Trip request", Required: true},
			&cli.BoolFlag{Name: "locate", Usage: "Resolve place names found in the plan"},
			&cli.DurationFlag{Name: "timeout", Usage: "Override generation.timeout"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load("tripctl")
			if err != nil {
				return err
			}
			timeout := cfg.Generation.Timeout
			if c.IsSet("timeout") {
				timeout = c.Duration("timeout")
			}

			generator := generation.New(cfg.Generation.BaseURL,
				generation.WithAPIKey(cfg.Generation.APIKey),
				generation.WithTimeout(timeout),
			)

			var plans *usecases.PlanService
			if c.Bool("locate") {
				// one-off lookups are still counted, against a throwaway in-memory tally
				usage := usecases.NewUsageMonitor(c.Context, memory.NewKVStore(), cfg.Usage.Limits())
				maps := googlemaps.NewClient(cfg.Google.APIKey, cfg.Google.BaseURL, rate.NewLimiter(rate.Limit(cfg.Google.RatePerSecond), 1))
				events := ticketmaster.NewClient(cfg.Ticketmaster.APIKey, cfg.Ticketmaster.BaseURL)
				discovery := usecases.NewDiscoveryService(maps, events, ttlcache.New(), usage, usecases.DefaultDiscoveryTTLs)
				plans = usecases.NewPlanService(generator, discovery)
			} else {
				plans = usecases.NewPlanService(generator, nil)
			}

			fmt.Fprintf(c.App.ErrWriter, "generating via %s (timeout %s)\n", generator.Endpoint(), generator.Timeout())
			plan, err := plans.Generate(c.Context, c.String("prompt"), c.Bool("locate"))
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, plan)
		},
	}
}
