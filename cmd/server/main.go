// Package main is the entrypoint for the jobtracker API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/api"
	mw "github.com/kiranshivaraju/jobtracker/internal/api/middleware"
	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/kiranshivaraju/jobtracker/internal/config"
	"github.com/kiranshivaraju/jobtracker/internal/reaper"
	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/internal/stream"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "strict_finish", cfg.Tracker.StrictFinish)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "dir", cfg.Database.MigrationsDir)

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.KeyPrefix)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and tracker services
	pgStore := store.NewPostgresStore(pool)
	tr := tracker.New(pgStore,
		tracker.WithCache(redisCache, cfg.Tracker.CacheTTL),
		tracker.WithStrictFinish(cfg.Tracker.StrictFinish),
	)

	// 6. Start the stale job reaper
	if cfg.Reaper.Schedule != "" {
		rp := reaper.New(pgStore, tr.Lifecycle, cfg.Reaper.StaleAfter, cfg.Reaper.BatchSize)
		if err := rp.Start(cfg.Reaper.Schedule); err != nil {
			return fmt.Errorf("start reaper: %w", err)
		}
		defer rp.Stop()
		slog.Info("reaper scheduled", "schedule", cfg.Reaper.Schedule, "stale_after", cfg.Reaper.StaleAfter)
	}

	// 7. Build router with dependencies
	deps := api.TrackerHandlers(tr, pgStore, redisCache)
	if cfg.Server.RateLimitPerMin > 0 {
		deps.RateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)
	}
	deps.StreamLogs = stream.NewHandler(tr.Hierarchy, tr.Logs, cfg.Server.AllowedOrigins, cfg.Stream.PollInterval).ServeHTTP

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: log streams hold the connection open.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
