package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// localsSessionID is set by session handlers so the access log can tie a
// request to the locator session it touched.
const localsSessionID = "session_id"

// AccessLogMiddleware writes one structured line per request through the
// request-scoped logger, so request_id is attached whenever the request ID
// middleware ran first. Polling endpoints are logged at debug.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", len(c.Response().Body())),
		}
		if sid, ok := c.Locals(localsSessionID).(string); ok && sid != "" {
			attrs = append(attrs, slog.String("session_id", sid))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		LoggerFromCtx(c.UserContext()).LogAttrs(c.UserContext(), accessLevel(route, status, err), "http request", attrs...)
		return err
	}
}

func accessLevel(route string, status int, err error) slog.Level {
	switch {
	case err != nil || status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == "/v1/health" || route == "/v1/ready" || route == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
