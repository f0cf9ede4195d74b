// Package backend opens the stores selected by the configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/config"
	"github.com/kamilpajak/testintel/internal/database"
	"github.com/kamilpajak/testintel/internal/graph"
	"github.com/kamilpajak/testintel/internal/sqlite"
	"github.com/kamilpajak/testintel/internal/store"
)

// Names of the relational backends.
const (
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// Backend bundles the stores the recorder writes to. Graph is the Neo4j
// store when one is configured and the relational store otherwise.
type Backend struct {
	Graph   store.GraphStore
	Suites  store.SuiteStore
	History store.AnalysisHistory

	Kind  string
	Neo4j bool

	closers []func() error
}

// Open connects to the configured relational store, running migrations on
// Postgres, and to Neo4j when a URI is set.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{}

	if cfg.UsesPostgres() {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.use(KindPostgres, db, func() error { db.Close(); return nil })
	} else {
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.use(KindSQLite, db, db.Close)
	}
	logger.Info("store opened", zap.String("backend", b.Kind))

	if cfg.UsesNeo4j() {
		g, err := graph.NewNeo4jStore(ctx, graph.Config{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		}, logger)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to open graph store: %w", err)
		}
		b.Graph = g
		b.Neo4j = true
		b.closers = append(b.closers, func() error { return g.Close(context.Background()) })
		logger.Info("graph store opened", zap.String("uri", cfg.Neo4jURI))
	}

	return b, nil
}

func (b *Backend) use(kind string, s store.Store, closer func() error) {
	b.Kind = kind
	b.Graph = s
	b.Suites = s
	b.History = s
	b.closers = append(b.closers, closer)
}

// Close releases every store, most recently opened first.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
