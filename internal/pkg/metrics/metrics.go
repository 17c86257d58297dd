package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carparkfinder",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Remote query service
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "remote",
		Name:      "requests_total",
		Help:      "Calls to the remote car park query service",
	}, []string{"endpoint", "outcome"})

	RemoteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carparkfinder",
		Subsystem: "remote",
		Name:      "request_duration_seconds",
		Help:      "Latency of remote car park query calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"endpoint"})

	// Locator pipeline
	SupersededRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "locator",
		Name:      "superseded_runs_total",
		Help:      "Async runs whose result was discarded because a newer run started",
	}, []string{"component"})

	RunFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "locator",
		Name:      "run_failures_total",
		Help:      "Async runs that ended in a remote failure",
	}, []string{"component"})

	AvailabilityBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "locator",
		Name:      "availability_batches_total",
		Help:      "Availability batch requests issued",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carparkfinder",
		Subsystem: "locator",
		Name:      "active_sessions",
		Help:      "Locator sessions currently held in memory",
	})

	// Catalog
	CatalogRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carparkfinder",
		Subsystem: "catalog",
		Name:      "rows",
		Help:      "Facilities in the currently loaded catalog",
	})

	CatalogRejectedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "catalog",
		Name:      "rejected_rows_total",
		Help:      "Catalog rows skipped because they could not be parsed",
	})

	// Cache
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carparkfinder",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "carparkfinder",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// ObserveRemote records one remote call outcome.
func ObserveRemote(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RemoteRequests.WithLabelValues(endpoint, outcome).Inc()
	RemoteDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
