package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/alertflux/internal/api"
	"github.com/sgerhart/alertflux/internal/config"
	"github.com/sgerhart/alertflux/internal/ingest"
	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/scan"
	"github.com/sgerhart/alertflux/internal/scheduler"
	"github.com/sgerhart/alertflux/internal/store"
	"github.com/sgerhart/alertflux/internal/strategy"
)

func main() {
	cfg := config.FromEnv()

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})).With("service", "aggregator")
	slog.SetDefault(logger)

	logger.Info("Starting AlertFlux Aggregator Service")

	logger.Info("Configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"nats_queue", cfg.NATSQueue,
		"strategies_dir", cfg.StrategiesDir,
		"hot_reload", cfg.HotReload,
		"debounce_ms", cfg.DebounceMs,
		"scan_interval", cfg.ScanInterval,
		"timeout_interval", cfg.TimeoutInterval,
		"idle_close_interval", cfg.IdleInterval,
		"write_batch_size", cfg.WriteBatchSize,
		"postgres", cfg.PostgresDSN != "")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	logger.Info("Connected to NATS")

	// Select the alert store
	var st store.Store
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(cfg.PostgresDSN, cfg.WriteBatchSize, logger)
		if err != nil {
			logger.Error("Failed to initialize Postgres store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		logger.Info("Postgres store initialized")
	} else {
		st = store.NewMemoryStore()
		logger.Info("Memory store initialized")
	}

	// Create metrics
	prometheusMetrics := metrics.NewMetrics()

	// Create strategy loader and load the initial snapshot
	loader := strategy.NewLoader(cfg.StrategiesDir, cfg.HotReload, cfg.DebounceMs, logger)
	if _, err := loader.LoadSnapshot(); err != nil {
		logger.Error("Failed to load initial strategy snapshot", "error", err)
		os.Exit(1)
	}
	snapshot := loader.GetSnapshot()
	prometheusMetrics.SetStrategiesLoaded(float64(len(snapshot.Strategies)))

	// Start strategy file watcher if hot reload is enabled
	if err := loader.WatchForChanges(); err != nil {
		logger.Error("Failed to start strategy watcher", "error", err)
		os.Exit(1)
	}

	// Wire intake, scan processor, and scheduler
	intake := ingest.NewIntake(st, prometheusMetrics, logger)
	publisher := ingest.NewPublisher(nc, logger)
	processor := scan.NewProcessor(st, publisher, prometheusMetrics, logger)

	sched := scheduler.NewScheduler(loader, processor, st, scheduler.Config{
		ScanInterval:    cfg.ScanInterval,
		TimeoutInterval: cfg.TimeoutInterval,
		IdleInterval:    cfg.IdleInterval,
	}, prometheusMetrics, logger)

	// Create NATS consumer with the scheduler handling strategy lifecycle
	consumer := ingest.NewConsumer(nc, intake, sched, cfg.NATSQueue, logger)

	// Create HTTP API
	server := api.NewServer(st, loader, intake, sched, nc, prometheusMetrics, cfg.IntakeSecret, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Start scan scheduler
	go func() {
		logger.Info("Starting scan scheduler")
		sched.Run(ctx)
	}()

	// Start NATS consumer
	go func() {
		logger.Info("Starting NATS consumer")
		if err := consumer.Subscribe(ctx); err != nil {
			logger.Error("NATS consumer error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Aggregator service started successfully")
	<-sigChan

	logger.Info("Shutting down aggregator service...")

	// Cancel context to stop the scheduler and NATS consumer
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Aggregator service stopped")
}
