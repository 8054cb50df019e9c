package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"visascout/internal/api/routes"
	"visascout/internal/config"
	"visascout/internal/dataset"
	"visascout/internal/jobs"
	"visascout/internal/logging"
	"visascout/internal/maintenance"
	"visascout/internal/runs"
	"visascout/internal/scan"
	"visascout/internal/scraper"
	"visascout/internal/service"
	"visascout/internal/session"
	"visascout/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logging.Initialize(cfg)
	logger.Info("Starting VisaScout job search service")

	// Open stores
	jobStore, err := jobs.Open(cfg.Stores.JobDBPath)
	if err != nil {
		logger.Error("Failed to open job database", map[string]interface{}{
			"path":  cfg.Stores.JobDBPath,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer jobStore.Close()

	sessionStore := session.NewStore(cfg.Sessions.Path, cfg.Sessions.TTL, cfg.Sessions.MaxGlobal, cfg.Sessions.MaxPerUser)
	runStore := runs.NewStore(cfg.Runs.Path, cfg.Runs.TTL, cfg.Runs.MaxRuns)
	prefsStore := store.NewPrefsStore(cfg.Stores.PrefsPath)
	savedStore := store.NewSavedStore(cfg.Stores.SavedPath)
	ignoredStore := store.NewIgnoredStore(cfg.Stores.IgnoredPath)
	datasets := dataset.NewStore()

	// Build the scan pipeline
	linkedin := scraper.NewLinkedInClient(cfg, logger)
	controller := scan.NewController(linkedin, scan.RetryPolicy{
		Window:         cfg.RateLimit.RetryWindow,
		InitialBackoff: cfg.RateLimit.InitialBackoff,
		MaxBackoff:     cfg.RateLimit.MaxBackoff,
		AttemptTimeout: cfg.RateLimit.AttemptTimeout,
	}, logger)

	svc := service.New(service.Deps{
		Config:   cfg,
		Log:      logger,
		Datasets: datasets,
		Sessions: sessionStore,
		Runs:     runStore,
		Jobs:     jobStore,
		Prefs:    prefsStore,
		Saved:    savedStore,
		Ignored:  ignoredStore,
		Scan:     controller,
	})

	// One-time import of legacy bookmark files into the lifecycle database
	if err := svc.MigrateLegacyJobs(); err != nil {
		logger.Error("Legacy job migration failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Background run executor
	executor := runs.NewExecutor(runStore, svc.RunStep, cfg.Runs.WorkerCount, logger)
	svc.AttachExecutor(executor)
	executor.Start()

	// Periodic session and run pruning
	scheduler := maintenance.NewScheduler(cfg, logger, sessionStore, runStore)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start maintenance scheduler", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	routes.SetupRoutes(e, cfg, svc)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Stopping maintenance scheduler...")
		scheduler.Stop()

		logger.Info("Stopping run executor...")
		if err := executor.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping run executor", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Stopping HTTP server...")
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Server shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{
		"address": address,
	})

	if err := e.Start(address); err != nil {
		logger.Info("Server stopped", map[string]interface{}{
			"reason": err.Error(),
		})
	}
}
