package middleware

import (
	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/metrics"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a new Middleware instance
func New(log *logger.Logger, m *metrics.Metrics) *Middleware {
	return &Middleware{
		log:     log.WithComponent("http"),
		metrics: m,
	}
}
