package analyzer

import (
	"math"
	"sort"

	"github.com/kamilpajak/testintel/pkg/models"
)

// UpdatePerformanceMetrics recomputes a test's performance metrics from its
// full execution history and appends point to the historical series.
//
// Execution-time statistics use passed executions only. point.SuccessRate
// is replaced with the recomputed success rate before it is appended.
func (a *Analyzer) UpdatePerformanceMetrics(current models.TestPerformanceMetrics, history []models.TestExecution, point models.PerformanceDataPoint) models.TestPerformanceMetrics {
	durations := make([]int64, 0, len(history))
	for _, e := range history {
		if e.Status == models.StatusPassed {
			durations = append(durations, e.DurationMS)
		}
	}

	metrics := models.TestPerformanceMetrics{
		AverageExecutionTime: mean(durations),
		P95ExecutionTime:     P95(durations),
		SuccessRate:          successRate(history),
		Trend:                a.Trend(history),
	}

	point.SuccessRate = metrics.SuccessRate
	series := make([]models.PerformanceDataPoint, 0, len(current.HistoricalData)+1)
	series = append(series, current.HistoricalData...)
	series = append(series, point)
	if limit := a.settings.HistoricalDataCap; len(series) > limit {
		series = series[len(series)-limit:]
	}
	metrics.HistoricalData = series

	return metrics
}

// P95 returns the nearest-rank 95th percentile: the value at index
// floor(0.95 * n) of the sorted durations, or 0 for no durations.
func P95(durations []int64) int64 {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]int64(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Floor(0.95 * float64(len(sorted))))
	if idx < 0 || idx >= len(sorted) {
		return 0
	}
	return sorted[idx]
}

// Trend compares the success rate of the latest window of executions with the
// window before it. Short histories, or an empty earlier window, are stable.
func (a *Analyzer) Trend(history []models.TestExecution) models.Trend {
	w := a.settings.TrendWindow
	if len(history) < w {
		return models.TrendStable
	}

	recent := history[len(history)-w:]
	start := max(len(history)-2*w, 0)
	older := history[start : len(history)-w]
	if len(older) == 0 {
		return models.TrendStable
	}

	diff := successRate(recent) - successRate(older)
	switch {
	case diff > a.settings.TrendDelta:
		return models.TrendImproving
	case diff < -a.settings.TrendDelta:
		return models.TrendDegrading
	default:
		return models.TrendStable
	}
}

func successRate(history []models.TestExecution) float64 {
	if len(history) == 0 {
		return 0
	}
	passed := 0
	for _, e := range history {
		if e.Status == models.StatusPassed {
			passed++
		}
	}
	return float64(passed) / float64(len(history))
}

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
