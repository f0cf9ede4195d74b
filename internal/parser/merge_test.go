package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testintel/pkg/models"
)

func fragment(name string, ts time.Time, results ...models.TestResult) *models.TestSuiteResult {
	s := newSuite(name, FormatJUnit, ts)
	for _, r := range results {
		s.Add(r)
	}
	return s
}

func TestMergeSuites(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	t.Run("no fragments", func(t *testing.T) {
		_, err := MergeSuites(FormatJUnit, nil)
		assert.ErrorContains(t, err, "no suites found")
	})

	t.Run("single fragment passes through", func(t *testing.T) {
		only := fragment("only", t1, models.TestResult{TestID: "a", Status: models.StatusPassed})
		got, err := MergeSuites(FormatJUnit, []*models.TestSuiteResult{only})
		require.NoError(t, err)
		assert.Same(t, only, got)
	})

	t.Run("several fragments", func(t *testing.T) {
		cov := &models.CoverageMetrics{Lines: 50}
		a := fragment("a", t1,
			models.TestResult{TestID: "a1", Status: models.StatusPassed, DurationMS: 10},
			models.TestResult{TestID: "a2", Status: models.StatusError, DurationMS: 5},
		)
		a.Coverage = cov
		b := fragment("b", t2,
			models.TestResult{TestID: "b1", Status: models.StatusSkipped},
			models.TestResult{TestID: "b2", Status: models.StatusFailed, DurationMS: 7},
		)

		got, err := MergeSuites(FormatJUnit, []*models.TestSuiteResult{a, b})
		require.NoError(t, err)

		assert.Equal(t, MergedSuiteName, got.SuiteName)
		assert.Equal(t, t1, got.Timestamp)
		assert.Equal(t, "junit", got.Framework)
		assert.Same(t, cov, got.Coverage)
		assert.Equal(t, 4, got.TotalTests)
		assert.Equal(t, 1, got.PassedTests)
		assert.Equal(t, 2, got.FailedTests)
		assert.Equal(t, 1, got.SkippedTests)
		assert.Equal(t, int64(22), got.DurationMS)

		ids := []string{}
		for _, r := range got.Results {
			ids = append(ids, r.TestID)
		}
		assert.Equal(t, []string{"a1", "a2", "b1", "b2"}, ids)
	})

	t.Run("claimed counters are recounted", func(t *testing.T) {
		a := fragment("a", t1, models.TestResult{TestID: "a1", Status: models.StatusPassed, DurationMS: 4})
		a.TotalTests, a.PassedTests, a.DurationMS = 10, 10, 1000
		b := fragment("b", t2, models.TestResult{TestID: "b1", Status: models.StatusFailed, DurationMS: 6})
		b.FailedTests = 7

		got, err := MergeSuites(FormatJUnit, []*models.TestSuiteResult{a, b})
		require.NoError(t, err)

		assert.Equal(t, 2, got.TotalTests)
		assert.Equal(t, 1, got.PassedTests)
		assert.Equal(t, 1, got.FailedTests)
		assert.Equal(t, int64(10), got.DurationMS)
	})
}
