package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fincollect/console/internal/config"
	"github.com/fincollect/console/internal/core"
	"github.com/fincollect/console/internal/logging"
	"github.com/fincollect/console/internal/reporting"
	"github.com/fincollect/console/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"reporting_base_url", cfg.Reporting.BaseURL,
		"nav_delay", cfg.Wizard.NavDelay.String(),
		"session_ttl", cfg.Wizard.SessionTTL.String(),
	)

	// Reporting service client
	client := reporting.NewClient(cfg.Reporting.BaseURL, cfg.Reporting.Timeout)

	// Session service
	service := core.NewService(client, slog.Default(), core.ServiceConfig{
		NavDelay:        cfg.Wizard.NavDelay,
		SessionTTL:      cfg.Wizard.SessionTTL,
		JanitorInterval: cfg.Wizard.JanitorInterval,
		MaxDispatches:   cfg.Wizard.MaxConcurrentDispatches,
		DispatchWait:    cfg.Wizard.DispatchWait,
	})

	server := web.NewServer(service, web.Options{
		MaxCSVSize:     cfg.Wizard.MaxCSVSize,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartSessionJanitor(jobCtx)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight submissions finish before closing the listener
		if err := service.Drain(shutdownCtx); err != nil {
			slog.Warn("submissions did not complete in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
