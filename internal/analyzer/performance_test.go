package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kamilpajak/testintel/pkg/models"
)

func TestP95(t *testing.T) {
	t.Run("nearest rank without interpolation", func(t *testing.T) {
		durations := make([]int64, 0, 20)
		for v := int64(2000); v >= 100; v -= 100 {
			durations = append(durations, v)
		}
		assert.Equal(t, int64(2000), P95(durations))
		// input is left untouched
		assert.Equal(t, int64(2000), durations[0])
		assert.Equal(t, int64(100), durations[19])
	})

	t.Run("hundred values", func(t *testing.T) {
		durations := make([]int64, 100)
		for i := range durations {
			durations[i] = int64(i + 1)
		}
		assert.Equal(t, int64(96), P95(durations))
	})

	t.Run("single value", func(t *testing.T) {
		assert.Equal(t, int64(42), P95([]int64{42}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, P95(nil))
	})
}

func TestUpdatePerformanceMetrics(t *testing.T) {
	a := newTestAnalyzer()

	history := []models.TestExecution{
		{Status: models.StatusPassed, DurationMS: 100},
		{Status: models.StatusFailed, DurationMS: 5000},
		{Status: models.StatusPassed, DurationMS: 300},
		{Status: models.StatusPassed, DurationMS: 200},
	}
	ts := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	point := models.PerformanceDataPoint{Timestamp: ts, ExecutionTime: 200, CoveragePercentage: 80, SuccessRate: 99}

	got := a.UpdatePerformanceMetrics(models.TestPerformanceMetrics{}, history, point)

	assert.InDelta(t, 200, got.AverageExecutionTime, 1e-9)
	assert.Equal(t, int64(300), got.P95ExecutionTime)
	assert.InDelta(t, 0.75, got.SuccessRate, 1e-9)
	assert.Equal(t, models.TrendStable, got.Trend)

	require.Len(t, got.HistoricalData, 1)
	assert.Equal(t, ts, got.HistoricalData[0].Timestamp)
	assert.Equal(t, int64(200), got.HistoricalData[0].ExecutionTime)
	assert.InDelta(t, 0.75, got.HistoricalData[0].SuccessRate, 1e-9)
	assert.InDelta(t, 80, got.HistoricalData[0].CoveragePercentage, 1e-9)
}

func TestUpdatePerformanceMetrics_NoPassedRuns(t *testing.T) {
	a := newTestAnalyzer()
	history := executions(models.StatusFailed, models.StatusSkipped)

	got := a.UpdatePerformanceMetrics(models.TestPerformanceMetrics{}, history, models.PerformanceDataPoint{})
	assert.Zero(t, got.AverageExecutionTime)
	assert.Zero(t, got.P95ExecutionTime)
	assert.Zero(t, got.SuccessRate)
}

func TestUpdatePerformanceMetrics_CapsHistoricalData(t *testing.T) {
	a := newTestAnalyzer()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var metrics models.TestPerformanceMetrics
	var history []models.TestExecution
	for i := 0; i < 105; i++ {
		history = append(history, models.TestExecution{Status: models.StatusPassed, DurationMS: int64(i)})
		metrics = a.UpdatePerformanceMetrics(metrics, history, models.PerformanceDataPoint{
			Timestamp:     start.Add(time.Duration(i) * time.Minute),
			ExecutionTime: int64(i),
		})
	}

	require.Len(t, metrics.HistoricalData, 100)
	assert.Equal(t, start.Add(5*time.Minute), metrics.HistoricalData[0].Timestamp)
	assert.Equal(t, int64(104), metrics.HistoricalData[99].ExecutionTime)
	assert.Len(t, history, 105)
}

func TestTrend(t *testing.T) {
	a := newTestAnalyzer()

	tests := []struct {
		name     string
		history  []models.TestExecution
		expected models.Trend
	}{
		{"too short", executions(models.StatusFailed, models.StatusPassed, models.StatusPassed, models.StatusPassed), models.TrendStable},
		{"exactly one window", executions(repeat(models.StatusPassed, 5)...), models.TrendStable},
		{"improving", executions(append(repeat(models.StatusFailed, 5), repeat(models.StatusPassed, 5)...)...), models.TrendImproving},
		{"degrading", executions(append(repeat(models.StatusPassed, 5), repeat(models.StatusFailed, 5)...)...), models.TrendDegrading},
		{"partial earlier window", executions(append(repeat(models.StatusFailed, 2), repeat(models.StatusPassed, 5)...)...), models.TrendImproving},
		{
			"all passing is stable",
			executions(
				models.StatusPassed, models.StatusPassed, models.StatusPassed, models.StatusPassed, models.StatusPassed,
				models.StatusPassed, models.StatusPassed, models.StatusPassed, models.StatusPassed, models.StatusPassed,
			),
			models.TrendStable,
		},
		{
			"older executions outside both windows are ignored",
			executions(append(repeat(models.StatusFailed, 10), repeat(models.StatusPassed, 10)...)...),
			models.TrendStable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, a.Trend(tt.history))
		})
	}
}

func TestHistoricalDataNeverExceedsCap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := DefaultSettings()
		s.HistoricalDataCap = rapid.IntRange(1, 20).Draw(t, "cap")
		a := New(s)

		var metrics models.TestPerformanceMetrics
		var history []models.TestExecution
		steps := rapid.IntRange(0, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			history = append(history, models.TestExecution{Status: models.StatusPassed})
			metrics = a.UpdatePerformanceMetrics(metrics, history, models.PerformanceDataPoint{ExecutionTime: int64(i)})

			want := min(i+1, s.HistoricalDataCap)
			if len(metrics.HistoricalData) != want {
				t.Fatalf("after %d updates got %d points, want %d", i+1, len(metrics.HistoricalData), want)
			}
			if last := metrics.HistoricalData[len(metrics.HistoricalData)-1]; last.ExecutionTime != int64(i) {
				t.Fatalf("latest point %d, want %d", last.ExecutionTime, i)
			}
		}
	})
}
