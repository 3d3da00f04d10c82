// Package api serves the read-only HTTP query surface of pvwatch.
//
// Endpoints:
//   - GET /health                  poll loop status
//   - GET /metrics                 Prometheus exposition
//   - GET /api/v1/readings/latest  reading parsed from the latest snapshot
//   - GET /api/v1/readings?window= records of a trailing window, newest first
//   - GET /api/v1/stats?window=    summary statistics of a trailing window
//   - GET /api/v1/series?metric=&window= one metric over a trailing window
//
// Windows are hour counts ("24"), day counts ("7d") or Go durations ("90m").
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ServerConfig holds configuration options for the HTTP server
type ServerConfig struct {
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// NewApp builds the Fiber app with all middleware and routes.
func NewApp(svc QueryService, status StatusSource, gatherer prometheus.Gatherer, cfg ServerConfig, logger *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pvwatch",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := statusOf(c, err)
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(RequestID())
	app.Use(Logging(logger))
	app.Use(Metrics())
	app.Use("/api", RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	RegisterRoutes(app, svc, status)

	return app
}
