package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/samirrijal/tripcore/internal/adapters/generation"
	"github.com/samirrijal/tripcore/internal/adapters/googlemaps"
	"github.com/samirrijal/tripcore/internal/adapters/http"
	natsadapter "github.com/samirrijal/tripcore/internal/adapters/nats"
	"github.com/samirrijal/tripcore/internal/adapters/storage"
	"github.com/samirrijal/tripcore/internal/adapters/ticketmaster"
	"github.com/samirrijal/tripcore/internal/adapters/valkey"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/core/usecases"
	"github.com/samirrijal/tripcore/internal/pkg/config"
	"github.com/samirrijal/tripcore/internal/pkg/logging"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
	"github.com/samirrijal/tripcore/internal/pkg/telemetry"
	"github.com/samirrijal/tripcore/internal/pkg/ttlcache"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load("tripcore-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	checks := map[string]http.ReadinessCheck{}

	// Valkey, shared by the response cache and the valkey storage driver
	var vk *valkey.Client
	if cfg.Cache.Backend == "valkey" || cfg.Storage.Driver == "valkey" {
		vk, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer vk.Close()
		checks["valkey"] = vk.Ping
	}

	// Usage counter storage
	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Database.DSN(),
		Valkey:      vk,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()
	checks["storage"] = store.Ping
	if store.DB != nil {
		go exportPoolStats(ctx, store)
	}

	// Response cache
	var cache ports.ResponseCache
	if cfg.Cache.Backend == "valkey" {
		cache = valkey.NewCache(vk)
	} else {
		mem := ttlcache.New()
		go mem.Run(ctx, cfg.Cache.SweepInterval)
		cache = mem
	}

	// NATS: publisher for quota events, raw connection for the WebSocket relay
	usageOpts := []usecases.UsageOption{
		usecases.WithWarnRatio(cfg.Usage.WarnRatio),
		usecases.WithCheckInterval(cfg.Usage.CheckInterval),
	}
	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, usage events disabled", "error", err)
		} else {
			defer pub.Close()
			usageOpts = append(usageOpts, usecases.WithUsageAlerter(pub))
		}

		natsConn, err = natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			defer natsConn.Close()
		}
	}

	// Use cases
	usage := usecases.NewUsageMonitor(ctx, store, cfg.Usage.Limits(), usageOpts...)
	go usage.Run(ctx)

	burst := int(cfg.Google.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	maps := googlemaps.NewClient(cfg.Google.APIKey, cfg.Google.BaseURL, rate.NewLimiter(rate.Limit(cfg.Google.RatePerSecond), burst))
	events := ticketmaster.NewClient(cfg.Ticketmaster.APIKey, cfg.Ticketmaster.BaseURL)
	if err := maps.CheckCredentials(); err != nil {
		slog.Warn("place lookups will fail until configured", "error", err)
	}
	if err := events.CheckCredentials(); err != nil {
		slog.Warn("event lookups will fail until configured", "error", err)
	}

	discovery := usecases.NewDiscoveryService(maps, events, cache, usage, usecases.DiscoveryTTLs{
		Places:  cfg.Cache.PlaceTTL,
		Photos:  cfg.Cache.PhotoTTL,
		Geocode: cfg.Cache.GeocodeTTL,
		Events:  cfg.Cache.EventTTL,
	})

	generator := generation.New(cfg.Generation.BaseURL,
		generation.WithAPIKey(cfg.Generation.APIKey),
		generation.WithTimeout(cfg.Generation.Timeout),
	)
	plans := usecases.NewPlanService(generator, discovery)

	deps := &http.Dependencies{
		Plans:     plans,
		Discovery: discovery,
		Usage:     usage,
		NATS:      natsConn,
		Checks:    checks,
		Version:   version,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "tripcore API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting",
			"addr", addr,
			"storage", store.Driver,
			"cache", cfg.Cache.Backend,
			"generation_endpoint", generator.Endpoint(),
			"generation_timeout", generator.Timeout().String(),
		)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// In-flight plan generations may need most of the write timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	cancel()

	slog.Info("server stopped")
}

// exportPoolStats publishes pgx pool gauges every 15s.
func exportPoolStats(ctx context.Context, store *storage.Backend) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(store.DB.Pool.Stat())
		}
	}
}
