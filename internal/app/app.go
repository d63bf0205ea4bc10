// Package app wires the simulation server together: storage, mail
// transport, campaign service, tracking endpoints, sweeper and HTTP
// server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awarenow/phishsim/internal/audience"
	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/config"
	"github.com/awarenow/phishsim/internal/db"
	"github.com/awarenow/phishsim/internal/dkim"
	"github.com/awarenow/phishsim/internal/mailer"
	"github.com/awarenow/phishsim/internal/metrics"
	"github.com/awarenow/phishsim/internal/server"
	"github.com/awarenow/phishsim/internal/spool"
	"github.com/awarenow/phishsim/internal/template"
	"github.com/awarenow/phishsim/internal/tracking"
)

// App is the main application
type App struct {
	config     *config.Config
	database   *db.DB
	failures   *spool.Spool
	httpServer *server.Server
	sweeper    *campaign.Sweeper
	logger     *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	failures, err := spool.Open(cfg.Spool.Path)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	var signer *dkim.Signer
	if cfg.DKIM.Enabled {
		signer, err = dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			failures.Close()
			database.Close()
			return nil, fmt.Errorf("failed to set up DKIM: %w", err)
		}
		logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	transport := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Hostname: cfg.Server.Hostname,
		Timeout:  cfg.SMTP.Timeout,
	}, signer, logger)

	urls, err := campaign.NewURLBuilder(cfg.Server.BaseURL)
	if err != nil {
		failures.Close()
		database.Close()
		return nil, err
	}

	m := metrics.New()
	engine := template.NewEngine()

	service := campaign.NewService(database.DB, campaign.Options{
		Audience:          audience.NewResolver(database.DB),
		Renderer:          engine,
		Transport:         transport,
		URLs:              urls,
		Logger:            logger,
		Metrics:           m,
		From:              cfg.SMTP.From,
		Placeholders:      cfg.Dispatch.Placeholders,
		ContinueOnFailure: cfg.Dispatch.ContinueOnFailure,
		Failures:          failures,
	})

	trackingHandlers := tracking.New(database.DB, tracking.Config{
		Logger:         logger,
		Metrics:        m,
		CompleteOnFall: cfg.Tracking.CompleteOnFall,
	})

	httpServer := server.NewServer(cfg, database.DB, server.Deps{
		Service:  service,
		Tracking: trackingHandlers,
		Engine:   engine,
		Failures: failures,
		Metrics:  m,
		Logger:   logger,
		Version:  version,
	})

	sweeper := campaign.NewSweeper(service, cfg.Sweep.Interval, logger)

	return &App{
		config:     cfg,
		database:   database,
		failures:   failures,
		httpServer: httpServer,
		sweeper:    sweeper,
		logger:     logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting phishsim",
		"addr", a.config.Server.ListenAddr,
		"base_url", a.config.Server.BaseURL,
		"database", a.config.Database.Path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.sweeper.Stop()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	if err := a.failures.Close(); err != nil {
		a.logger.Error("spool close error", "error", err)
	}
	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
