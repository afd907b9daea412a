// Package app provides the main application lifecycle management for the
// social publisher service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/social-publisher/internal/api"
	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/contentstore"
	"github.com/jonesrussell/social-publisher/internal/credentials"
	"github.com/jonesrussell/social-publisher/internal/database"
	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/destination/facebook"
	"github.com/jonesrussell/social-publisher/internal/destination/instagram"
	"github.com/jonesrussell/social-publisher/internal/destination/telegram"
	"github.com/jonesrussell/social-publisher/internal/destination/vk"
	"github.com/jonesrussell/social-publisher/internal/generation"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/media"
	"github.com/jonesrussell/social-publisher/internal/metrics"
	"github.com/jonesrussell/social-publisher/internal/publish"
	"github.com/jonesrussell/social-publisher/internal/redislock"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	// publishLockTTL bounds how long a crashed publish holds its lock.
	publishLockTTL = 5 * time.Minute

	// destinationCallTimeout bounds a single destination API round trip.
	destinationCallTimeout = 60 * time.Second
)

// App represents the publisher application with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	redisClient *redis.Client
	db          *sqlx.DB
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "social-publisher"),
		logger.String("version", opts.Version),
	)

	app := &App{
		config:  cfg,
		logger:  appLogger,
		version: opts.Version,
	}

	// Optional collaborators: the publisher degrades gracefully without
	// Redis (no publish lock) and without Postgres (no local history).
	var locker publish.Locker
	if cfg.Redis.Addr != "" {
		redisClient, redisErr := redislock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			_ = appLogger.Sync()
			return nil, fmt.Errorf("connect to Redis: %w", redisErr)
		}
		app.redisClient = redisClient
		locker = redislock.NewLocker(redisClient, publishLockTTL)
	} else {
		appLogger.Warn("Redis not configured, publish locking is disabled")
	}

	var history *database.Repository
	if cfg.Database.DSN != "" {
		db, dbErr := database.Connect(cfg.Database.DSN)
		if dbErr != nil {
			app.closePartial()
			return nil, fmt.Errorf("connect to database: %w", dbErr)
		}
		app.db = db
		history = database.NewRepository(db)
	} else {
		appLogger.Warn("Database not configured, publish history is disabled")
	}

	resolver, err := media.NewResolver(cfg.Media, appLogger)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("create media resolver: %w", err)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	downloader := media.NewDownloader(cfg.Media, appMetrics, appLogger)

	destClient := &http.Client{Timeout: destinationCallTimeout}
	clients := []destination.Client{
		telegram.New(telegram.Config{
			ChatIDFallback: cfg.Destinations["telegram"].ChatIDFallback,
		}, downloader, destClient, appLogger),
		vk.New(vk.Config{}, downloader, destClient, appLogger),
		facebook.New(facebook.Config{}, destClient, appLogger),
		instagram.New(instagram.Config{}, destClient, appLogger),
	}

	store := contentstore.New(cfg.ContentStore, appLogger)
	credsProvider := credentials.NewHTTPProvider(cfg.Credentials, appLogger)

	var historyRecorder publish.HistoryRecorder
	var historyReader api.HistoryReader
	if history != nil {
		historyRecorder = history
		historyReader = history
	}

	dispatcher := publish.NewDispatcher(publish.Options{
		Store:        store,
		Credentials:  credsProvider,
		Resolver:     resolver,
		Clients:      clients,
		Destinations: cfg.Destinations,
		Resilience:   cfg.Resilience,
		Locker:       locker,
		History:      historyRecorder,
		Metrics:      appMetrics,
		Logger:       appLogger,
	})

	adapters := generation.NewFalAdapters(
		cfg.Generation.FalBaseURL,
		cfg.Generation.FalAPIKey,
		&http.Client{Timeout: cfg.Generation.SubmitTimeout},
		appLogger,
	)
	orchestrator := generation.NewOrchestrator(
		generation.NewRegistry(adapters...),
		cfg.Generation,
		appLogger,
	)

	handlers := api.NewHandlers(dispatcher, orchestrator, historyReader, appMetrics, appLogger, opts.Version)
	proxy := api.NewMediaProxy(cfg.Media, cfg.ContentStore.Token, appLogger)
	router := api.NewRouter(cfg, handlers, proxy, registry)

	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

// Run starts the HTTP server and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.logger.Info("Starting HTTP server",
			logger.String("address", a.httpServer.Addr),
			logger.Bool("debug", a.config.Debug),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	return a.waitForShutdown(ctx, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(ctx context.Context, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
	case <-ctx.Done():
		a.logger.Info("Shutting down, context cancelled")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
		return err
	}

	a.logger.Info("Service stopped")
	return nil
}

// closePartial releases resources acquired before a construction failure.
func (a *App) closePartial() {
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
