// Package testintel implements the testintel command line.
package testintel

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/analyzer"
	"github.com/kamilpajak/testintel/internal/backend"
	"github.com/kamilpajak/testintel/internal/config"
	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/internal/logging"
	"github.com/kamilpajak/testintel/internal/metrics"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/internal/telemetry"
)

var (
	configPath string
	sqlitePath string
	verbose    bool
	jsonOutput bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "testintel",
	Short: "Test report ingestion and flakiness analysis",
	Long: `testintel normalizes JUnit, Jest, Mocha, Vitest, Cypress and Playwright
reports, records every run per test and reports flaky tests, performance
trends and coverage per code symbol.

Results are stored in SQLite by default, in PostgreSQL when DATABASE_URL is
set, and the test graph goes to Neo4j when NEO4J_URI is set.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "SQLite database file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(perfCmd)
	rootCmd.AddCommand(flakyCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if sqlitePath != "" {
		loaded.SQLitePath = sqlitePath
	}
	cfg = loaded

	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	logger, err = logging.New(level, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// session holds everything a command needs to record and query tests.
type session struct {
	stores   *backend.Backend
	recorder *recorder.Recorder
	ingest   *ingest.Service
	metrics  *metrics.Collector
	tracing  telemetry.Shutdown
}

func openSession(ctx context.Context) (*session, error) {
	tracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, err
	}

	stores, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		_ = tracing(ctx)
		return nil, err
	}

	collector := metrics.NewCollector()
	rec := recorder.New(stores.Graph, stores.Suites,
		recorder.WithLogger(logger),
		recorder.WithAnalyzer(analyzer.New(cfg.Analysis)),
		recorder.WithObserver(collector),
	)

	return &session{
		stores:   stores,
		recorder: rec,
		ingest:   ingest.New(rec, logger),
		metrics:  collector,
		tracing:  tracing,
	}, nil
}

func (s *session) Close(ctx context.Context) {
	if err := s.stores.Close(); err != nil {
		logger.Warn("failed to close stores", zap.Error(err))
	}
	if err := s.tracing(ctx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}
}
