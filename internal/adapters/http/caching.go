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

		case path == "/metrics":
			ttl = "no-cache"

		// Session state is per user and changes with every remote run.
		case strings.HasPrefix(path, "/v1/sessions"), strings.HasPrefix(path, "/v1/favorites"):
			ttl = "no-store"

		case path == "/v1/lot-types":
			ttl = "public, max-age=86400"

		// The catalog only changes when a sync replaces it.
		case strings.HasPrefix(path, "/v1/carparks"):
			ttl = "public, max-age=3600"

		case strings.HasPrefix(path, "/v1/geocode"):
			ttl = "public, max-age=300"

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}

		return err
	}
}
