package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// requestTimeout bounds every v1 handler. It matches the remote query timeout.
const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(recover.New())

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	if len(deps.AllowOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(deps.AllowOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		}))
	}

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
		Next: func(c *fiber.Ctx) bool {
			// Map panning drives many session updates per minute.
			return strings.HasPrefix(c.Path(), "/v1/sessions/")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Static catalog
	v1.Get("/carparks", timeout.NewWithContext(ListCarparksHandler(deps), requestTimeout))
	v1.Get("/carparks/:id", timeout.NewWithContext(GetCarparkHandler(deps), requestTimeout))
	v1.Get("/catalog/status", timeout.NewWithContext(CatalogStatusHandler(deps), requestTimeout))
	v1.Get("/lot-types", LotTypesHandler())

	// Place search
	v1.Get("/geocode/search", timeout.NewWithContext(GeocodeSearchHandler(deps), requestTimeout))

	// Locator sessions
	v1.Post("/sessions", CreateSessionHandler(deps))
	v1.Get("/sessions/:id", GetSessionHandler(deps))
	v1.Delete("/sessions/:id", DeleteSessionHandler(deps))
	v1.Put("/sessions/:id/location", SetLocationHandler(deps))
	v1.Put("/sessions/:id/selection", SelectLocationHandler(deps))
	v1.Put("/sessions/:id/window", SetWindowHandler(deps))
	v1.Put("/sessions/:id/lot-type", SetLotTypeHandler(deps))
	v1.Put("/sessions/:id/radius", SetRadiusHandler(deps))
	v1.Get("/sessions/:id/nearby", NearbyHandler(deps))
	v1.Get("/sessions/:id/availability", AvailabilityHandler(deps))
	v1.Post("/sessions/:id/availability/refetch", RefetchAvailabilityHandler(deps))
	v1.Get("/sessions/:id/focus", FocusHandler(deps))
	v1.Put("/sessions/:id/focus", SetFocusHandler(deps))
	v1.Delete("/sessions/:id/focus", ClearFocusHandler(deps))

	// Sign-in and favorites
	v1.Post("/auth/google-login", timeout.NewWithContext(GoogleLoginHandler(deps), requestTimeout))
	auth := RequireAuth(deps)
	v1.Get("/favorites", auth, timeout.NewWithContext(ListFavoritesHandler(deps), requestTimeout))
	v1.Put("/favorites/:id", auth, timeout.NewWithContext(ToggleFavoriteHandler(deps), requestTimeout))
	v1.Get("/sessions/:id/favorites", auth, timeout.NewWithContext(SessionFavoritesHandler(deps), requestTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.OpenAPIPath)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
