package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kamilpajak/testintel/pkg/models"
)

func newTestAnalyzer() *Analyzer {
	a := New(DefaultSettings())
	a.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestSettingsValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultSettings().Validate())
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		s := DefaultSettings()
		s.FlakyThreshold = 1.5
		s.TrendDelta = -0.1
		s.RecentWindow = 0
		s.HistoricalDataCap = -1

		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "flaky_threshold must be within [0,1], got 1.5")
		assert.Contains(t, err.Error(), "trend_delta must be within [0,1]")
		assert.Contains(t, err.Error(), "recent_window must be positive, got 0")
		assert.Contains(t, err.Error(), "historical_data_cap must be positive, got -1")
	})
}

func results(id string, statuses []models.TestStatus, durations []int64) []models.TestResult {
	out := make([]models.TestResult, len(statuses))
	for i, st := range statuses {
		out[i] = models.TestResult{TestID: id, TestName: id, Status: st}
		if durations != nil {
			out[i].DurationMS = durations[i]
		}
		if st.IsFailure() {
			out[i].ErrorMessage = "boom"
		}
	}
	return out
}

func alternating(n int, a, b models.TestStatus) []models.TestStatus {
	out := make([]models.TestStatus, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

func TestAnalyzeFlakyTests(t *testing.T) {
	a := newTestAnalyzer()

	t.Run("alternating pass and fail is flaky", func(t *testing.T) {
		got := a.AnalyzeFlakyTests(results("t", alternating(10, models.StatusPassed, models.StatusFailed), nil))
		require.Len(t, got, 1)

		analysis := got[0]
		assert.Equal(t, "t", analysis.TestID)
		assert.InDelta(t, 1.0, analysis.Patterns.AlternatingRatio, 1e-9)
		assert.InDelta(t, 0.5, analysis.Patterns.RecentFailureRate, 1e-9)
		assert.InDelta(t, 0.5, analysis.FlakyScore, 1e-9)
		assert.Greater(t, analysis.FlakyScore, 0.3)
		assert.Equal(t, 10, analysis.TotalRuns)
		assert.Equal(t, 5, analysis.FailedRuns)
		assert.Equal(t, 5, analysis.PassedRuns)
		assert.InDelta(t, 0.5, analysis.FailureRate, 1e-9)
		assert.Equal(t, []string{"boom"}, analysis.Patterns.CommonErrors)
		assert.Equal(t, []string{RecommendMonitor}, analysis.Recommendations)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), analysis.AnalyzedAt)
	})

	t.Run("stable tests are not reported", func(t *testing.T) {
		statuses := make([]models.TestStatus, 10)
		for i := range statuses {
			statuses[i] = models.StatusPassed
		}
		assert.Empty(t, a.AnalyzeFlakyTests(results("t", statuses, nil)))
	})

	t.Run("medium tier", func(t *testing.T) {
		durations := []int64{0, 1000, 0, 1000, 0, 1000, 0, 1000, 0, 1000}
		got := a.AnalyzeFlakyTests(results("t", alternating(10, models.StatusPassed, models.StatusFailed), durations))
		require.Len(t, got, 1)
		assert.InDelta(t, 500, got[0].Patterns.DurationStdDevMS, 1e-9)
		assert.InDelta(t, 0.65, got[0].FlakyScore, 1e-9)
		assert.Equal(t, []string{RecommendIsolation, RecommendRetry, RecommendMonitor}, got[0].Recommendations)
	})

	t.Run("high tier", func(t *testing.T) {
		durations := []int64{0, 3000, 0, 3000, 0, 3000, 0, 3000, 0, 3000}
		got := a.AnalyzeFlakyTests(results("t", alternating(10, models.StatusFailed, models.StatusError), durations))
		require.Len(t, got, 1)
		assert.InDelta(t, 1.0, got[0].FlakyScore, 1e-9)
		assert.Equal(t, 10, got[0].FailedRuns)
		assert.Equal(t, []string{RecommendDeterministic, RecommendRaceCheck, RecommendMonitor}, got[0].Recommendations)
	})

	t.Run("fewer than three results have no alternating signal", func(t *testing.T) {
		got := a.AnalyzeFlakyTests(results("t", []models.TestStatus{models.StatusFailed, models.StatusPassed}, nil))
		// 0.4 * 0.5 = 0.2 stays under the threshold
		assert.Empty(t, got)
	})

	t.Run("recent failure rate only looks at the latest window", func(t *testing.T) {
		statuses := make([]models.TestStatus, 0, 15)
		for i := 0; i < 5; i++ {
			statuses = append(statuses, models.StatusFailed)
		}
		for i := 0; i < 10; i++ {
			statuses = append(statuses, models.StatusPassed)
		}
		analysis := a.AnalyzeHistory("t", "t", executions(statuses...))
		assert.Zero(t, analysis.Patterns.RecentFailureRate)
		assert.InDelta(t, 1.0/14.0, analysis.Patterns.AlternatingRatio, 1e-9)
		assert.InDelta(t, 5.0/15.0, analysis.FailureRate, 1e-9)
	})

	t.Run("groups keep first appearance order", func(t *testing.T) {
		var batch []models.TestResult
		for i := 0; i < 4; i++ {
			batch = append(batch,
				models.TestResult{TestID: "b", Status: []models.TestStatus{models.StatusPassed, models.StatusFailed}[i%2]},
				models.TestResult{TestID: "a", Status: []models.TestStatus{models.StatusFailed, models.StatusPassed}[i%2]},
				models.TestResult{TestID: "c", Status: models.StatusPassed},
			)
		}
		got := a.AnalyzeFlakyTests(batch)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].TestID)
		assert.Equal(t, "a", got[1].TestID)
	})

	t.Run("empty batch", func(t *testing.T) {
		assert.Empty(t, a.AnalyzeFlakyTests(nil))
	})
}

func TestCommonErrors(t *testing.T) {
	runs := []run{
		{status: models.StatusFailed, errMsg: "timeout\nstack"},
		{status: models.StatusFailed, errMsg: "connection refused"},
		{status: models.StatusError, errMsg: "timeout"},
		{status: models.StatusPassed, errMsg: "ignored"},
		{status: models.StatusFailed, errMsg: "a"},
		{status: models.StatusFailed, errMsg: "b"},
		{status: models.StatusFailed, errMsg: "c"},
		{status: models.StatusFailed, errMsg: "d"},
		{status: models.StatusFailed, errMsg: "  "},
	}
	assert.Equal(t, []string{"timeout", "connection refused", "a", "b", "c"}, commonErrors(runs))
}

func executions(statuses ...models.TestStatus) []models.TestExecution {
	out := make([]models.TestExecution, len(statuses))
	for i, st := range statuses {
		out[i] = models.TestExecution{Status: st, DurationMS: 100}
	}
	return out
}

func repeat(st models.TestStatus, n int) []models.TestStatus {
	out := make([]models.TestStatus, n)
	for i := range out {
		out[i] = st
	}
	return out
}

func TestCumulativeFlakyScore(t *testing.T) {
	a := newTestAnalyzer()

	t.Run("short history scores zero", func(t *testing.T) {
		assert.Zero(t, a.CumulativeFlakyScore(executions(models.StatusFailed, models.StatusFailed)))
		assert.Zero(t, a.CumulativeFlakyScore(nil))
	})

	t.Run("weights overall and latest failure rates", func(t *testing.T) {
		history := executions(append(repeat(models.StatusPassed, 15), repeat(models.StatusFailed, 5)...)...)
		assert.InDelta(t, 0.6*0.25+0.4*1.0, a.CumulativeFlakyScore(history), 1e-9)
	})

	t.Run("only the latest twenty executions count", func(t *testing.T) {
		history := executions(append(repeat(models.StatusFailed, 5), repeat(models.StatusPassed, 20)...)...)
		assert.Zero(t, a.CumulativeFlakyScore(history))
	})

	t.Run("three executions are enough", func(t *testing.T) {
		history := executions(models.StatusPassed, models.StatusError, models.StatusSkipped)
		assert.InDelta(t, 0.6/3+0.4/3, a.CumulativeFlakyScore(history), 1e-9)
	})
}

func TestFlakyScoreBounds(t *testing.T) {
	a := newTestAnalyzer()
	statuses := []models.TestStatus{models.StatusPassed, models.StatusFailed, models.StatusSkipped, models.StatusError}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "n")
		picked := rapid.SliceOfN(rapid.SampledFrom(statuses), n, n).Draw(t, "statuses")
		durations := rapid.SliceOfN(rapid.Int64Range(0, 60000), n, n).Draw(t, "durations")

		analysis := a.AnalyzeHistory("t", "t", nil)
		batch := results("t", picked, durations)
		for _, got := range a.AnalyzeFlakyTests(batch) {
			analysis = got
		}

		if analysis.FlakyScore < 0 || analysis.FlakyScore > 1 {
			t.Fatalf("score %v out of range", analysis.FlakyScore)
		}
		if analysis.FlakyScore != 0 && analysis.FlakyScore <= 0.3 {
			t.Fatalf("reported score %v does not exceed the threshold", analysis.FlakyScore)
		}

		history := make([]models.TestExecution, n)
		for i := range picked {
			history[i] = models.TestExecution{Status: picked[i], DurationMS: durations[i]}
		}
		if s := a.CumulativeFlakyScore(history); s < 0 || s > 1 {
			t.Fatalf("cumulative score %v out of range", s)
		}
	})
}
