package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leaseline/export-engine/internal/api"
	"github.com/leaseline/export-engine/internal/config"
	"github.com/leaseline/export-engine/internal/engine"
	"github.com/leaseline/export-engine/internal/jobhealth"
	"github.com/leaseline/export-engine/internal/store"
	"github.com/leaseline/export-engine/internal/telemetry"
	"github.com/leaseline/export-engine/internal/websocket"
	"github.com/leaseline/export-engine/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis (per-target breaker and rate limiter state)
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	breaker := engine.NewCircuitBreaker(redisStore.Client(), logger.With("component", "breaker"), cfg.BreakerThreshold, cfg.BreakerCooldown)
	limiter := engine.NewRateLimiter(redisStore.Client(), logger.With("component", "ratelimiter"))

	// Ops feed hub
	hub := websocket.NewHub(logger.With("component", "websocket"))
	go hub.Run()

	// Job health
	tracker := jobhealth.NewTracker(pgStore, logger.With("component", "jobhealth"))
	monitor := jobhealth.NewMonitor(jobhealth.MonitorConfig{
		Interval:         cfg.MonitorInterval,
		StaleAfter:       cfg.HeartbeatStaleAfter,
		FailureThreshold: cfg.AlertFailureThreshold,
		Cooldown:         cfg.AlertCooldown,
	}, pgStore, logger.With("component", "monitor"))

	// Delivery worker pool
	deliverer := worker.NewDeliverer(cfg.AttemptTimeout, cfg.SigningSecret, logger.With("component", "deliverer"))
	pool := worker.NewPool(worker.Config{
		NumWorkers:      cfg.NumWorkers,
		BatchSize:       cfg.ClaimBatchSize,
		PollInterval:    cfg.PollInterval,
		AttemptTimeout:  cfg.AttemptTimeout,
		LeaseWindow:     cfg.LeaseWindow,
		TargetRateLimit: cfg.TargetRateLimit,
		Policy: engine.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
		},
	}, pgStore, deliverer, tracker, logger.With("component", "worker")).
		WithGates(breaker, limiter).
		WithHub(hub)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool.Start(workerCtx)
	go monitor.Start(workerCtx)
	go pollDueGauge(workerCtx, pgStore)

	// Setup router
	router := api.NewRouter(api.Stores{
		Events: pgStore,
		Jobs:   pgStore,
		Stats:  pgStore,
		HealthChecks: []api.HealthCheck{
			{Name: "postgres", Probe: pgStore.Pool().Ping},
			{Name: "redis", Probe: func(ctx context.Context) error { return redisStore.Client().Ping(ctx).Err() }},
		},
	}, breaker, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Drain the workers first so in-flight attempts finish and unattempted
	// claims are released, then stop serving reads.
	stopWorkers()
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// pollDueGauge keeps the due-events gauge fresh for alerting on delivery
// backlog.
func pollDueGauge(ctx context.Context, pgStore *store.PostgresStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := pgStore.CountDue(ctx, time.Now()); err == nil {
				telemetry.DueGauge.Set(float64(n))
			}
		}
	}
}
