package analyzer

import (
	"math"
	"sort"
	"strings"

	"github.com/kamilpajak/testintel/pkg/models"
)

// Score weights of the batch flakiness formula.
const (
	recentFailureWeight = 0.4
	alternatingWeight   = 0.3
	durationWeight      = 0.3
	// durationScaleMS is the deviation at which the duration signal saturates.
	durationScaleMS = 1000.0

	cumulativeOverallWeight = 0.6
	cumulativeRecentWeight  = 0.4

	maxCommonErrors = 5
)

// Recommendation texts, from the most to the least severe tier.
const (
	RecommendDeterministic = "Rewrite the test to be deterministic: remove reliance on timing, ordering and shared state"
	RecommendRaceCheck     = "Check the test and the code under test for race conditions"
	RecommendIsolation     = "Run the test in isolation to rule out interference from other tests"
	RecommendRetry         = "Add retry logic with backoff around unstable external dependencies"
	RecommendMonitor       = "Monitor the test's flakiness score over upcoming runs"
)

// run is the minimal view of one execution the scoring needs.
type run struct {
	status   models.TestStatus
	duration int64
	errMsg   string
}

// AnalyzeFlakyTests groups results by test id and returns an analysis for
// every group whose score exceeds the flaky threshold. Groups keep the order
// in which their test id first appears.
func (a *Analyzer) AnalyzeFlakyTests(results []models.TestResult) []models.FlakyTestAnalysis {
	order := make([]string, 0)
	names := make(map[string]string)
	groups := make(map[string][]run)

	for _, r := range results {
		if _, seen := groups[r.TestID]; !seen {
			order = append(order, r.TestID)
			names[r.TestID] = r.TestName
		}
		groups[r.TestID] = append(groups[r.TestID], run{status: r.Status, duration: r.DurationMS, errMsg: r.ErrorMessage})
	}

	analyses := make([]models.FlakyTestAnalysis, 0)
	for _, id := range order {
		analysis := a.analyze(id, names[id], groups[id])
		if analysis.FlakyScore > a.settings.FlakyThreshold {
			analyses = append(analyses, analysis)
		}
	}
	return analyses
}

// AnalyzeHistory scores a test's stored execution history with the batch
// formula. The analysis is returned whatever its score.
func (a *Analyzer) AnalyzeHistory(testID, testName string, history []models.TestExecution) models.FlakyTestAnalysis {
	runs := make([]run, 0, len(history))
	for _, e := range history {
		runs = append(runs, run{status: e.Status, duration: e.DurationMS, errMsg: e.ErrorMessage})
	}
	return a.analyze(testID, testName, runs)
}

func (a *Analyzer) analyze(testID, testName string, runs []run) models.FlakyTestAnalysis {
	analysis := models.FlakyTestAnalysis{
		TestID:     testID,
		TestName:   testName,
		TotalRuns:  len(runs),
		AnalyzedAt: a.now().UTC(),
	}

	durations := make([]float64, 0, len(runs))
	for _, r := range runs {
		switch {
		case r.status == models.StatusPassed:
			analysis.PassedRuns++
		case r.status == models.StatusSkipped:
			analysis.SkippedRuns++
		case r.status.IsFailure():
			analysis.FailedRuns++
		}
		durations = append(durations, float64(r.duration))
	}
	if len(runs) > 0 {
		analysis.FailureRate = float64(analysis.FailedRuns) / float64(len(runs))
	}

	recent := runs
	if len(recent) > a.settings.RecentWindow {
		recent = recent[len(recent)-a.settings.RecentWindow:]
	}

	analysis.Patterns = models.FlakyPatterns{
		RecentFailureRate: failureRate(recent),
		AlternatingRatio:  alternatingRatio(runs),
		DurationStdDevMS:  stdDev(durations),
		CommonErrors:      commonErrors(runs),
	}

	score := recentFailureWeight*analysis.Patterns.RecentFailureRate +
		alternatingWeight*analysis.Patterns.AlternatingRatio +
		durationWeight*math.Min(analysis.Patterns.DurationStdDevMS/durationScaleMS, 1)
	analysis.FlakyScore = clamp01(score)
	analysis.Recommendations = a.Recommendations(analysis.FlakyScore)

	return analysis
}

// Recommendations returns the advice for a flakiness score. The monitoring
// advice is always last.
func (a *Analyzer) Recommendations(score float64) []string {
	var recs []string
	switch {
	case score > a.settings.HighFlakyThreshold:
		recs = append(recs, RecommendDeterministic, RecommendRaceCheck)
	case score > a.settings.MediumFlakyThreshold:
		recs = append(recs, RecommendIsolation, RecommendRetry)
	}
	return append(recs, RecommendMonitor)
}

// CumulativeFlakyScore scores a test entity from its latest executions:
// 0.6 * failure rate over the cumulative window plus 0.4 * failure rate over
// the latest few. Too short a history scores zero.
func (a *Analyzer) CumulativeFlakyScore(history []models.TestExecution) float64 {
	window := (&models.Test{ExecutionHistory: history}).RecentExecutions(a.settings.CumulativeWindow)
	if len(window) < a.settings.MinCumulativeHistory {
		return 0
	}

	latest := (&models.Test{ExecutionHistory: window}).RecentExecutions(a.settings.CumulativeRecentWindow)

	return clamp01(cumulativeOverallWeight*executionFailureRate(window) +
		cumulativeRecentWeight*executionFailureRate(latest))
}

func failureRate(runs []run) float64 {
	if len(runs) == 0 {
		return 0
	}
	failed := 0
	for _, r := range runs {
		if r.status.IsFailure() {
			failed++
		}
	}
	return float64(failed) / float64(len(runs))
}

func executionFailureRate(executions []models.TestExecution) float64 {
	if len(executions) == 0 {
		return 0
	}
	failed := 0
	for _, e := range executions {
		if e.Status.IsFailure() {
			failed++
		}
	}
	return float64(failed) / float64(len(executions))
}

// alternatingRatio is the share of consecutive status changes. Fewer than
// three runs carry no signal.
func alternatingRatio(runs []run) float64 {
	if len(runs) < 3 {
		return 0
	}
	changes := 0
	for i := 1; i < len(runs); i++ {
		if runs[i].status != runs[i-1].status {
			changes++
		}
	}
	return float64(changes) / float64(len(runs)-1)
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

// commonErrors returns the most frequent first lines of failure messages.
func commonErrors(runs []run) []string {
	counts := make(map[string]int)
	var order []string
	for _, r := range runs {
		if !r.status.IsFailure() || strings.TrimSpace(r.errMsg) == "" {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(r.errMsg), "\n")
		if counts[line] == 0 {
			order = append(order, line)
		}
		counts[line]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxCommonErrors {
		order = order[:maxCommonErrors]
	}
	return order
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
