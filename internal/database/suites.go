package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// StoreTestSuiteResult stores one ingested suite under a fresh row id.
func (db *DB) StoreTestSuiteResult(ctx context.Context, suite *models.TestSuiteResult) error {
	if suite == nil {
		return fmt.Errorf("suite is required")
	}
	results, err := json.Marshal(suite.Results)
	if err != nil {
		return fmt.Errorf("failed to encode suite results: %w", err)
	}
	var coverage []byte
	if suite.Coverage != nil {
		if coverage, err = json.Marshal(suite.Coverage); err != nil {
			return fmt.Errorf("failed to encode suite coverage: %w", err)
		}
	}
	var runAt any
	if !suite.Timestamp.IsZero() {
		runAt = suite.Timestamp
	}

	err = WithRetry(ctx, maxRetries, retryBaseDelay, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO test_suite_results
			 (id, suite_name, framework, run_at, total_tests, passed_tests, failed_tests, skipped_tests, duration_ms, results, coverage)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New(), suite.SuiteName, suite.Framework, runAt,
			suite.TotalTests, suite.PassedTests, suite.FailedTests, suite.SkippedTests, suite.DurationMS,
			results, coverage,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert suite result %s: %w", suite.SuiteName, err)
	}
	return nil
}

// StoreFlakyTestAnalyses stores a batch of flakiness reports in one transaction.
func (db *DB) StoreFlakyTestAnalyses(ctx context.Context, analyses []models.FlakyTestAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range analyses {
		patterns, err := json.Marshal(a.Patterns)
		if err != nil {
			return fmt.Errorf("failed to encode patterns of %s: %w", a.TestID, err)
		}
		recs := a.Recommendations
		if recs == nil {
			recs = []string{}
		}
		batch.Queue(
			`INSERT INTO flaky_test_analyses
			 (id, test_id, test_name, flaky_score, total_runs, failed_runs, passed_runs, skipped_runs, failure_rate, patterns, recommendations, analyzed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New(), a.TestID, a.TestName, a.FlakyScore,
			a.TotalRuns, a.FailedRuns, a.PassedRuns, a.SkippedRuns, a.FailureRate,
			patterns, recs, a.AnalyzedAt,
		)
	}

	err := WithRetry(ctx, maxRetries, retryBaseDelay, func() error {
		return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if err != nil {
		return fmt.Errorf("failed to insert flaky test analyses: %w", err)
	}
	return nil
}

// ListFlakyTestAnalyses returns the stored reports of a test, newest first.
func (db *DB) ListFlakyTestAnalyses(ctx context.Context, testID string, limit int) ([]models.FlakyTestAnalysis, error) {
	if limit <= 0 {
		limit = store.DefaultAnalysisLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT test_id, test_name, flaky_score, total_runs, failed_runs, passed_runs, skipped_runs,
		        failure_rate, patterns, recommendations, analyzed_at
		 FROM flaky_test_analyses
		 WHERE test_id = $1
		 ORDER BY analyzed_at DESC
		 LIMIT $2`,
		testID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flaky test analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]models.FlakyTestAnalysis, 0)
	for rows.Next() {
		var a models.FlakyTestAnalysis
		var patterns []byte
		if err := rows.Scan(
			&a.TestID, &a.TestName, &a.FlakyScore, &a.TotalRuns, &a.FailedRuns, &a.PassedRuns, &a.SkippedRuns,
			&a.FailureRate, &patterns, &a.Recommendations, &a.AnalyzedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flaky test analysis: %w", err)
		}
		if err := json.Unmarshal(patterns, &a.Patterns); err != nil {
			return nil, fmt.Errorf("failed to decode patterns of %s: %w", a.TestID, err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}
