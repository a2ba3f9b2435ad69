package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters. HTTP-level metrics (latency, status, in-flight) come from
// fiberprometheus; these track portal events the HTTP layer cannot see.
var (
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_request_transitions_total",
		Help: "App request lifecycle transitions by target status.",
	}, []string{"to_status"})

	ProvisionedAssignments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atrium_provisioned_assignments_total",
		Help: "User app assignments created by request provisioning.",
	})

	CatalogSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_catalog_sync_runs_total",
		Help: "Catalog sync runs by outcome.",
	}, []string{"status"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_redis_errors_total",
		Help: "Errors talking to Redis, across cache and rate limiting.",
	}, []string{"command"})
)

// InitMetrics registers the Prometheus middleware on the app and exposes the
// scrape endpoint at /metrics.
func InitMetrics(app *fiber.App) fiber.Handler {
	prom := fiberprometheus.New("atrium-api")
	prom.RegisterAt(app, "/metrics")
	return prom.Middleware
}
