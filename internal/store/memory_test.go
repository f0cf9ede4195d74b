package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testintel/pkg/models"
)

func TestMemory_Entities(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("missing entity", func(t *testing.T) {
		_, err := m.GetEntity(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("round-trips a test without sharing state", func(t *testing.T) {
		ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		test := &models.Test{
			ID:               "suite#a",
			Type:             models.EntityTypeTest,
			Status:           models.StatusFailed,
			Tags:             []string{"jest", "unit"},
			ExecutionHistory: []models.TestExecution{{ID: "suite#a_1", Timestamp: ts, Status: models.StatusFailed}},
			LastRunAt:        ts,
		}
		require.NoError(t, m.CreateOrUpdateEntity(ctx, test))

		test.Tags[0] = "mutated"

		got, err := m.GetEntity(ctx, "suite#a")
		require.NoError(t, err)
		stored, ok := got.(*models.Test)
		require.True(t, ok)
		assert.Equal(t, []string{"jest", "unit"}, stored.Tags)
		assert.Equal(t, models.StatusFailed, stored.Status)
		require.Len(t, stored.ExecutionHistory, 1)
		assert.Equal(t, ts, stored.ExecutionHistory[0].Timestamp)
	})

	t.Run("generic entities keep their type", func(t *testing.T) {
		sym := &models.GenericEntity{ID: "sym", Type: "function", Properties: map[string]any{"name": "Add"}}
		require.NoError(t, m.CreateOrUpdateEntity(ctx, sym))

		got, err := m.GetEntity(ctx, "sym")
		require.NoError(t, err)
		assert.Equal(t, "function", got.EntityType())
		assert.Equal(t, "Add", got.(*models.GenericEntity).Properties["name"])
	})

	t.Run("rejects entities without id", func(t *testing.T) {
		assert.Error(t, m.CreateOrUpdateEntity(ctx, &models.Test{}))
	})
}

func TestMemory_Relationships(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rel := func(from, to, typ string, pct float64) models.Relationship {
		return models.Relationship{
			ID:           models.CoverageRelationshipID(from, to),
			FromEntityID: from,
			ToEntityID:   to,
			Type:         typ,
			Metadata:     map[string]any{"coveragePercentage": pct},
		}
	}

	require.NoError(t, m.CreateRelationship(ctx, rel("t1", "sym", models.RelationshipCoverageProvides, 10)))
	require.NoError(t, m.CreateRelationship(ctx, rel("t2", "sym", models.RelationshipCoverageProvides, 20)))
	require.NoError(t, m.CreateRelationship(ctx, rel("t3", "other", models.RelationshipCoverageProvides, 30)))
	require.NoError(t, m.CreateRelationship(ctx, rel("t1", "sym", "CALLS", 0)))
	// same id again replaces in place
	require.NoError(t, m.CreateRelationship(ctx, rel("t1", "sym", models.RelationshipCoverageProvides, 50)))

	got, err := m.QueryRelationships(ctx, models.RelationshipQuery{ToEntityID: "sym", Type: models.RelationshipCoverageProvides})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].FromEntityID)
	assert.Equal(t, 50.0, got[0].Metadata["coveragePercentage"])
	assert.Equal(t, "t2", got[1].FromEntityID)

	assert.Error(t, m.CreateRelationship(ctx, models.Relationship{}))
}

func TestMemory_SuitesAndAnalyses(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	suite := &models.TestSuiteResult{SuiteName: "s", Results: []models.TestResult{{TestID: "a"}}}
	require.NoError(t, m.StoreTestSuiteResult(ctx, suite))
	suite.Results[0].TestID = "changed"

	require.Len(t, m.Suites(), 1)
	assert.Equal(t, "a", m.Suites()[0].Results[0].TestID)
	assert.Error(t, m.StoreTestSuiteResult(ctx, nil))

	require.NoError(t, m.StoreFlakyTestAnalyses(ctx, []models.FlakyTestAnalysis{{TestID: "a"}, {TestID: "b"}}))
	require.NoError(t, m.StoreFlakyTestAnalyses(ctx, nil))
	assert.Len(t, m.Analyses(), 2)
}

func TestMemory_ListFlakyTestAnalyses(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.StoreFlakyTestAnalyses(ctx, []models.FlakyTestAnalysis{
		{TestID: "a", FlakyScore: 0.4, AnalyzedAt: t0},
		{TestID: "b", FlakyScore: 0.9, AnalyzedAt: t0},
	}))
	require.NoError(t, m.StoreFlakyTestAnalyses(ctx, []models.FlakyTestAnalysis{
		{TestID: "a", FlakyScore: 0.6, AnalyzedAt: t0.Add(time.Hour)},
	}))

	got, err := m.ListFlakyTestAnalyses(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.6, got[0].FlakyScore)
	assert.Equal(t, 0.4, got[1].FlakyScore)

	got, err = m.ListFlakyTestAnalyses(ctx, "a", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = m.ListFlakyTestAnalyses(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
