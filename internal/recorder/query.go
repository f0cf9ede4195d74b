package recorder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/analyzer"
	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// GetTest returns the stored test entity. Unknown ids, and ids of entities
// that are not tests, return an error wrapping store.ErrNotFound.
func (r *Recorder) GetTest(ctx context.Context, testID string) (*models.Test, error) {
	test, err := r.loadTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test %s: %w", testID, err)
	}
	if test == nil {
		return nil, fmt.Errorf("test %s: %w", testID, store.ErrNotFound)
	}
	return test, nil
}

// GetPerformanceMetrics returns the performance metrics of a test.
func (r *Recorder) GetPerformanceMetrics(ctx context.Context, testID string) (*models.TestPerformanceMetrics, error) {
	test, err := r.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return &test.PerformanceMetrics, nil
}

// AnalyzeTestFlakiness scores a test's whole stored history. Unlike batch
// analysis, the result is returned even when it is below the flaky threshold.
func (r *Recorder) AnalyzeTestFlakiness(ctx context.Context, testID string) (*models.FlakyTestAnalysis, error) {
	test, err := r.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	analysis := r.analyzer.AnalyzeHistory(test.ID, testName(test), test.ExecutionHistory)
	return &analysis, nil
}

// GetCoverageAnalysis aggregates the coverage of every test that provides
// coverage to symbolID.
func (r *Recorder) GetCoverageAnalysis(ctx context.Context, symbolID string) (*models.CoverageAnalysis, error) {
	rels, err := r.graph.QueryRelationships(ctx, models.RelationshipQuery{
		ToEntityID: symbolID,
		Type:       models.RelationshipCoverageProvides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage of %s: %w", symbolID, err)
	}

	tests := make([]*models.Test, 0, len(rels))
	for _, rel := range rels {
		test, err := r.loadTest(ctx, rel.FromEntityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load test %s: %w", rel.FromEntityID, err)
		}
		if test == nil {
			r.logger.Warn("coverage relationship points at a missing test",
				zap.String("relationship_id", rel.ID),
				zap.String("test_id", rel.FromEntityID),
			)
			continue
		}
		tests = append(tests, test)
	}

	analysis := analyzer.AnalyzeCoverage(symbolID, tests)
	return &analysis, nil
}

// testName recovers the display name from a "suite#name" style id.
func testName(test *models.Test) string {
	if i := strings.LastIndexByte(test.ID, '#'); i >= 0 {
		return test.ID[i+1:]
	}
	return test.ID
}
