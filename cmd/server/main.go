// Package main provides the testintel ingestion and query server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/analyzer"
	"github.com/kamilpajak/testintel/internal/api"
	"github.com/kamilpajak/testintel/internal/backend"
	"github.com/kamilpajak/testintel/internal/config"
	"github.com/kamilpajak/testintel/internal/database"
	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/internal/logging"
	"github.com/kamilpajak/testintel/internal/metrics"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/internal/telemetry"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx is cancelled. Every exit path returns through here so
// the logger is flushed.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	var (
		configPath  = flags.String("config", getEnv("TESTINTEL_CONFIG", ""), "Path to a YAML config file")
		port        = flags.String("port", "", "Server port (overrides config)")
		migrateOnly = flags.Bool("migrate", false, "Run migrations and exit")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port != "" {
		p, err := strconv.Atoi(*port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", *port, err)
		}
		cfg.Port = p
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if *migrateOnly {
		if !cfg.UsesPostgres() {
			return fmt.Errorf("DATABASE_URL is required for -migrate")
		}
		logger.Info("running database migrations")
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("migrations complete")
		return nil
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	stores, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer func() { _ = stores.Close() }()

	collector := metrics.NewCollector()
	rec := recorder.New(stores.Graph, stores.Suites,
		recorder.WithLogger(logger),
		recorder.WithAnalyzer(analyzer.New(cfg.Analysis)),
		recorder.WithObserver(collector),
	)

	server := api.NewServer(api.Config{
		Ingest:   ingest.New(rec, logger),
		Recorder: rec,
		History:  stores.History,
		Metrics:  collector,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.String("backend", stores.Kind), zap.Bool("neo4j", stores.Neo4j))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		_ = shutdownTracing(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
