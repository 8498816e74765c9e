package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/audit"
	"github.com/baechuer/artfront/services/visitor-state/internal/config"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/postgres"
	"github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/redis"
	"github.com/baechuer/artfront/services/visitor-state/internal/pkg/logger"
	"github.com/baechuer/artfront/services/visitor-state/internal/security"
	"github.com/baechuer/artfront/services/visitor-state/internal/service"
	"github.com/baechuer/artfront/services/visitor-state/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "visitor-state").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres (user path) ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis (guest path, engagement, recency) ----
	store := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer store.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// the service still starts; store calls surface as 503 until redis is back
		if err := store.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Application services ----
	clock := domain.SystemClock{}
	auditLog := audit.New(log)

	resolver := service.NewResolver(store, repo, clock, auditLog)
	tracker := service.NewEngagementTracker(store, store, clock, cfg.RecentViewsCap, cfg.RecentViewsTTL)
	scheduler := service.NewNotificationScheduler(store, store, clock, cfg.NotifyMinInterval, auditLog)

	h := rest.NewHandler(resolver, tracker, scheduler)

	// ---- JWT verifier ----
	verifier := security.NewHS256Verifier(cfg.JWTSecret)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:        h,
		Verifier:       verifier,
		JWTIssuer:      cfg.JWTIssuer,
		Limiter:        store,
		RLEnabled:      cfg.RLEnabled,
		RLLimit:        cfg.RLLimit,
		RLWindow:       cfg.RLWindow,
		Health:         map[string]rest.Pinger{"postgres": repo, "redis": store},
		MetricsEnabled: cfg.MetricsEnabled,
	})

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server crash
	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
