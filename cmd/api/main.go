package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ddnet-tracker/internal/auth"
	"ddnet-tracker/internal/config"
	"ddnet-tracker/internal/database"
	"ddnet-tracker/internal/ddnet"
	"ddnet-tracker/internal/logging"
	"ddnet-tracker/internal/metrics"
	"ddnet-tracker/internal/redis"
	"ddnet-tracker/internal/server"
	"ddnet-tracker/internal/settings"
	"ddnet-tracker/internal/tracker"
)

func gracefulShutdown(apiServer *server.Server, httpServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	slog.Info("Shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then close live feeds and background tasks.
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("Error during server shutdown", "error", err)
	}

	done <- true
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
		return err
	}

	reg := metrics.NewRegistry()

	authService, err := auth.NewService(
		database.NewUserRepo(db.Pool()),
		database.NewSessionRepo(db.Pool()),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithCost(cfg.BcryptCost),
	)
	if err != nil {
		return err
	}

	settingsOpts := []settings.Option{
		settings.WithTTL(cfg.SettingsCacheTTL),
		settings.WithMetrics(metrics.NewCacheMetrics(reg)),
	}
	deps := server.Deps{
		Auth:     authService,
		DB:       db,
		Registry: reg,
	}

	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		deps.Redis = rdb
		settingsOpts = append(settingsOpts, settings.WithPublisher(redis.NewSettingsPublisher(rdb)))
		slog.Info("Redis connected, settings invalidation enabled")
	}
	deps.Settings = settings.NewService(database.NewSettingsRepo(db.Pool()), settingsOpts...)

	ddnetClient := ddnet.NewClient(
		ddnet.WithURL(cfg.DDNetServersURL),
		ddnet.WithHTTPClient(&http.Client{Timeout: cfg.DDNetFetchTimeout}),
		ddnet.WithFetchTimeout(cfg.DDNetFetchTimeout),
		ddnet.WithCacheTTL(cfg.DDNetCacheTTL),
		ddnet.WithRateLimit(cfg.DDNetRatePerSecond),
		ddnet.WithMetrics(metrics.NewUpstreamMetrics(reg)),
	)
	deps.Tracker = tracker.NewService(database.NewTrackedPlayerRepo(db.Pool()), ddnetClient)

	apiServer := server.NewServer(cfg, deps)
	apiServer.StartBackgroundTasks()
	httpServer := apiServer.HTTPServer()

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, httpServer, done)

	slog.Info("Server starting", "addr", httpServer.Addr, "env", cfg.AppEnv)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	slog.Info("Graceful shutdown complete")
	return nil
}
