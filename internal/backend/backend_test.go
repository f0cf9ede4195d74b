package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kamilpajak/testintel/internal/config"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/pkg/models"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "testintel.db")

	b, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, KindSQLite, b.Kind)
	assert.False(t, b.Neo4j)

	rec := recorder.New(b.Graph, b.Suites)
	err = rec.RecordTestResults(context.Background(), &models.TestSuiteResult{
		SuiteName: "s",
		Framework: "jest",
		Results:   []models.TestResult{{TestID: "a", TestName: "a", Status: models.StatusPassed}},
	})
	require.NoError(t, err)

	test, err := rec.GetTest(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "jest", test.Framework)

	require.NoError(t, b.Close())
	assert.NoError(t, b.Close(), "closing twice is a no-op")
}

func TestOpen_BadNeo4jURI(t *testing.T) {
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "testintel.db")
	cfg.Neo4jURI = "nope://localhost"

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "failed to open graph store")
}
