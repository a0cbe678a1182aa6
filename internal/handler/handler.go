package handler

import (
	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/database"
	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	db              *database.Postgres
	rdb             *database.Redis
	log             *logger.Logger
	cfg             *config.Config
	subscriptionSvc *service.SubscriptionService
}

// New creates a new Handler instance. rdb is nil when Redis is disabled.
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, subscriptionSvc *service.SubscriptionService) *Handler {
	return &Handler{
		db:              db,
		rdb:             rdb,
		log:             log.WithComponent("http"),
		cfg:             cfg,
		subscriptionSvc: subscriptionSvc,
	}
}
