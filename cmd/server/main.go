package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/brunojppb/mailbolt/internal/config"
	"github.com/brunojppb/mailbolt/internal/database"
	"github.com/brunojppb/mailbolt/internal/email"
	"github.com/brunojppb/mailbolt/internal/handler"
	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/metrics"
	"github.com/brunojppb/mailbolt/internal/middleware"
	"github.com/brunojppb/mailbolt/internal/repository"
	"github.com/brunojppb/mailbolt/internal/router"
	"github.com/brunojppb/mailbolt/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("version", config.Version).
		Str("environment", string(cfg.Environment)).
		Msg("starting mailbolt server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	var rdb *database.Redis
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("connected to Redis")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	sender, err := email.NewSender(ctx, cfg.Email)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}
	log.Info().Str("provider", cfg.Email.Provider).Msg("email sender initialized")

	// Initialize repositories and services
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	var redelivery *service.RedeliveryQueue
	if cfg.Email.Redelivery.Enabled {
		redelivery = service.NewRedeliveryQueue(rdb, subscriptionRepo, sender, m, cfg, log)
	}

	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, sender, nil, redelivery, m, cfg, log)

	h := handler.New(db, rdb, log, cfg, subscriptionSvc)
	mw := middleware.New(log, m)
	r := router.New(h, mw, cfg.Metrics, prometheus.DefaultGatherer)

	// Create HTTP server
	addr := cfg.Application.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Str("base_url", cfg.Application.BaseURL).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if redelivery != nil {
		g.Go(func() error {
			return redelivery.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
