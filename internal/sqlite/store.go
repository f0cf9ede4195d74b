// Package sqlite stores the test knowledge graph and suite results in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schemaVersion = 1

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		from_entity_id TEXT NOT NULL,
		to_entity_id TEXT NOT NULL,
		type TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships (to_entity_id, type)`,
	`CREATE TABLE IF NOT EXISTS test_suite_results (
		id TEXT PRIMARY KEY,
		suite_name TEXT NOT NULL,
		framework TEXT NOT NULL,
		run_at TEXT,
		total_tests INTEGER NOT NULL,
		passed_tests INTEGER NOT NULL,
		failed_tests INTEGER NOT NULL,
		skipped_tests INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		results TEXT NOT NULL,
		coverage TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flaky_test_analyses (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		test_id TEXT NOT NULL,
		analyzed_at TEXT NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flaky_test_analyses_test ON flaky_test_analyses (test_id, analyzed_at)`,
}

// Store is a store.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies the schema.
// Use MemoryPath for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`}
	for _, stmt := range append(pragmas, schema...) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// GetEntity implements store.GraphStore.
func (s *Store) GetEntity(ctx context.Context, id string) (models.Entity, error) {
	var entityType, data string
	err := s.db.QueryRowContext(ctx, `SELECT type, data FROM entities WHERE id = ?`, id).Scan(&entityType, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return store.DecodeEntity(id, entityType, []byte(data))
}

// CreateOrUpdateEntity implements store.GraphStore.
func (s *Store) CreateOrUpdateEntity(ctx context.Context, entity models.Entity) error {
	if entity == nil || entity.EntityID() == "" {
		return fmt.Errorf("entity id is required")
	}
	data, err := store.EncodeEntity(entity)
	if err != nil {
		return err
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET type = excluded.type, data = excluded.data, updated_at = excluded.updated_at`,
		entity.EntityID(), entity.EntityType(), string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", entity.EntityID(), err)
	}
	return nil
}

// CreateRelationship implements store.GraphStore.
func (s *Store) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	if rel.ID == "" {
		return fmt.Errorf("relationship id is required")
	}
	metadata, err := store.EncodeMetadata(rel.Metadata)
	if err != nil {
		return err
	}
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relationships (id, from_entity_id, to_entity_id, type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET from_entity_id = excluded.from_entity_id,
		     to_entity_id = excluded.to_entity_id,
		     type = excluded.type,
		     metadata = excluded.metadata`,
		rel.ID, rel.FromEntityID, rel.ToEntityID, rel.Type, string(metadata),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s: %w", rel.ID, err)
	}
	return nil
}

// QueryRelationships implements store.GraphStore.
func (s *Store) QueryRelationships(ctx context.Context, query models.RelationshipQuery) ([]models.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_entity_id, to_entity_id, type, metadata, created_at
		 FROM relationships
		 WHERE (?1 = '' OR to_entity_id = ?1) AND (?2 = '' OR type = ?2)
		 ORDER BY seq`,
		query.ToEntityID, query.Type,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]models.Relationship, 0)
	for rows.Next() {
		var rel models.Relationship
		var metadata, createdAt string
		if err := rows.Scan(&rel.ID, &rel.FromEntityID, &rel.ToEntityID, &rel.Type, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if rel.Metadata, err = store.DecodeMetadata([]byte(metadata)); err != nil {
			return nil, err
		}
		if rel.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse relationship timestamp: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// StoreTestSuiteResult implements store.SuiteStore.
func (s *Store) StoreTestSuiteResult(ctx context.Context, suite *models.TestSuiteResult) error {
	if suite == nil {
		return fmt.Errorf("suite is required")
	}
	results, err := json.Marshal(suite.Results)
	if err != nil {
		return fmt.Errorf("failed to encode suite results: %w", err)
	}
	var coverage sql.NullString
	if suite.Coverage != nil {
		data, err := json.Marshal(suite.Coverage)
		if err != nil {
			return fmt.Errorf("failed to encode suite coverage: %w", err)
		}
		coverage = sql.NullString{String: string(data), Valid: true}
	}
	var runAt sql.NullString
	if !suite.Timestamp.IsZero() {
		runAt = sql.NullString{String: suite.Timestamp.UTC().Format(timeLayout), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO test_suite_results
		 (id, suite_name, framework, run_at, total_tests, passed_tests, failed_tests, skipped_tests, duration_ms, results, coverage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), suite.SuiteName, suite.Framework, runAt,
		suite.TotalTests, suite.PassedTests, suite.FailedTests, suite.SkippedTests, suite.DurationMS,
		string(results), coverage, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert suite result %s: %w", suite.SuiteName, err)
	}
	return nil
}

// StoreFlakyTestAnalyses implements store.SuiteStore. The batch is written
// in one transaction.
func (s *Store) StoreFlakyTestAnalyses(ctx context.Context, analyses []models.FlakyTestAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range analyses {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode flaky test analysis of %s: %w", a.TestID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO flaky_test_analyses (id, test_id, analyzed_at, data) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), a.TestID, a.AnalyzedAt.UTC().Format(timeLayout), string(data),
		); err != nil {
			return fmt.Errorf("failed to insert flaky test analysis of %s: %w", a.TestID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flaky test analyses: %w", err)
	}
	return nil
}

// ListFlakyTestAnalyses implements store.AnalysisHistory.
func (s *Store) ListFlakyTestAnalyses(ctx context.Context, testID string, limit int) ([]models.FlakyTestAnalysis, error) {
	if limit <= 0 {
		limit = store.DefaultAnalysisLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM flaky_test_analyses
		 WHERE test_id = ?
		 ORDER BY analyzed_at DESC, seq DESC
		 LIMIT ?`,
		testID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flaky test analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]models.FlakyTestAnalysis, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan flaky test analysis: %w", err)
		}
		var a models.FlakyTestAnalysis
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("failed to decode flaky test analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// SuiteCount returns the number of stored suite results.
func (s *Store) SuiteCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_suite_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count suite results: %w", err)
	}
	return n, nil
}
