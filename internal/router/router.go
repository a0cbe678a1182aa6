package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/handler"
	"github.com/brunojppb/mailbolt/internal/middleware"
)

// New creates and configures the HTTP router. gatherer backs the metrics
// endpoint and is ignored when metrics are disabled.
func New(h *handler.Handler, mw *middleware.Middleware, cfg config.MetricsConfig, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Panic recovery (outermost), then request ID so logs can carry it
	r.Use(mw.Recover)
	r.Use(mw.RequestID)
	r.Use(mw.Logger)

	// Probes
	r.Get("/health_check", h.HealthCheck)
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	// Subscriptions
	r.Post("/subscriptions", h.Subscribe)
	r.Get("/subscriptions/confirm", h.ConfirmSubscription)

	if cfg.Enabled {
		path := cfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
