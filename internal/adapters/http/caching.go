package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Handlers that set their own header win.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"

		case path == "/metrics", strings.HasPrefix(path, "/v1/usage"):
			ttl = "no-cache"

		case strings.HasPrefix(path, "/v1/places/photo"):
			ttl = "public, max-age=86400" // photo URLs are stable for a day

		case strings.HasPrefix(path, "/v1/places"), strings.HasPrefix(path, "/v1/geocode"):
			ttl = "public, max-age=3600"

		case strings.HasPrefix(path, "/v1/events"):
			ttl = "public, max-age=300"

		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=600"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}

		return err
	}
}
