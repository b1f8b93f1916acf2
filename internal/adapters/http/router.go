package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
)

const (
	lookupTimeout = 15 * time.Second
	// Plan generation waits on the generation backend, whose own timeout defaults to 45s.
	planTimeout = 60 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Plans
	v1.Post("/plans", timeout.NewWithContext(GeneratePlanHandler(deps), planTimeout))
	v1.Post("/plans/parse", ParsePlanHandler(deps))
	v1.Post("/plans/geometry", GeometryHandler(deps))
	v1.Post("/plans/locate", timeout.NewWithContext(LocateHandler(deps), planTimeout))

	// Discovery
	v1.Get("/places/search", timeout.NewWithContext(SearchPlacesHandler(deps), lookupTimeout))
	v1.Get("/places/photo", timeout.NewWithContext(PlacePhotoHandler(deps), lookupTimeout))
	v1.Get("/geocode", timeout.NewWithContext(GeocodeHandler(deps), lookupTimeout))
	v1.Get("/events", timeout.NewWithContext(EventsHandler(deps), lookupTimeout))

	// Quota
	v1.Get("/usage", UsageStatsHandler(deps))
	v1.Post("/usage/reset", ResetUsageHandler(deps))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.OpenAPIPath)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/usage", websocket.New(UsageRelayHandler(deps.NATS)))
}
