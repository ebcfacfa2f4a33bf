package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/post-relay/internal/api"
	"github.com/Priya8975/post-relay/internal/config"
	"github.com/Priya8975/post-relay/internal/engine"
	"github.com/Priya8975/post-relay/internal/fetcher"
	"github.com/Priya8975/post-relay/internal/health"
	"github.com/Priya8975/post-relay/internal/store"
	"github.com/Priya8975/post-relay/internal/websocket"
	"github.com/Priya8975/post-relay/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	cursors := store.NewCursorStore(redisStore.Client())
	sessions := store.NewSessionStore(redisStore.Client())

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// One limiter paces every upstream request, including logins.
	pacing := fetcher.PacingLimiter(cfg.ScrapeRPS)
	scraper := fetcher.NewXScraper(sessions, pacing, logger)
	postFetcher := fetcher.New(scraper, pacing, cfg.PostsPerFetch, logger)

	deliverer := worker.NewDeliverer(cfg.WebhookTimeout, pgStore, hub, logger)
	pool := worker.NewPool(cfg.DeliveryConcurrency, deliverer, logger)

	probe := health.NewProbe(cfg.HealthProbeURL, cfg.HealthProbeTimeout, logger)
	lifecycle := engine.NewLifecycle(probe, pgStore, pool, hub, logger)

	scheduler := engine.NewScheduler(engine.Deps{
		Subscriptions: pgStore,
		Credentials:   cfg.Credentials,
		Fetcher:       postFetcher,
		Cursor:        cursors,
		Dispatcher:    pool,
		Lifecycle:     lifecycle,
		Budget:        engine.NewCredentialBudget(redisStore.Client(), cfg.CredentialHourlyBudget, logger),
		Reporter:      deliverer,
		ErrorWebhook:  cfg.ErrorWebhookURL,
		Publisher:     hub,
	}, cfg.PollInterval, logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	router := api.NewRouter(pgStore, cursors, hub, deliverer, map[string]api.Check{
		"postgres": pgStore.Ping,
		"redis": func(ctx context.Context) error {
			return redisStore.Client().Ping(ctx).Err()
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}

	logger.Info("relay stopped")
}
