package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/citelens/citelens/internal/api"
	"github.com/citelens/citelens/internal/archive"
	"github.com/citelens/citelens/internal/config"
	"github.com/citelens/citelens/internal/ingest"
	"github.com/citelens/citelens/internal/monitoring"
	"github.com/citelens/citelens/internal/notifications"
	"github.com/citelens/citelens/internal/platforms"
	"github.com/citelens/citelens/internal/scheduler"
	"github.com/citelens/citelens/internal/stats"
	"github.com/citelens/citelens/internal/store"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting CiteLens")

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logrus.Fatalf("Failed to create data directory %s: %v", dir, err)
		}
	}

	st, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = st.Close() }()

	// Report archive is optional; without a storage account reports are
	// delivered but not kept.
	var archiver archive.Archiver = archive.Noop{}
	if cfg.StorageAccount != "" {
		azureArchive, err := archive.NewAzureArchive(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize report archive: %v", err)
		}
		archiver = azureArchive
	}

	clock := scheduler.Clock(time.Now)
	registry := platforms.NewRegistry(cfg)
	classifier := platforms.NewKeywordClassifier()
	notifier := notifications.NewService(cfg)

	schedService := scheduler.NewService(st, clock)
	aggregator := stats.NewAggregator(st)
	analyzer := stats.NewAnalyzer(st)
	ingestor := ingest.NewService(st, aggregator)

	monitor := monitoring.NewService(cfg, st, schedService, ingestor, aggregator, analyzer,
		registry, classifier, notifier, archiver, clock)

	driver := scheduler.NewDriver(cfg, monitor, monitor)
	if err := driver.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer driver.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewServer(cfg, st, schedService, ingestor, aggregator, analyzer, monitor, registry, archiver, clock).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
