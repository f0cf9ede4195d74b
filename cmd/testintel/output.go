package testintel

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/pkg/models"
)

func printSummary(w io.Writer, s ingest.Summary) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "%s", s.SuiteName)
	_, _ = dim.Fprintf(w, " (%s", s.Framework)
	if s.Source != "" {
		_, _ = dim.Fprintf(w, ", %s", s.Source)
	}
	_, _ = dim.Fprintln(w, ")")

	fmt.Fprintf(w, "  %d tests: ", s.Total)
	_, _ = color.New(color.FgGreen).Fprintf(w, "%d passed", s.Passed)
	fmt.Fprint(w, ", ")
	failed := color.New(color.FgHiBlack)
	if s.Failed > 0 {
		failed = color.New(color.FgRed)
	}
	_, _ = failed.Fprintf(w, "%d failed", s.Failed)
	fmt.Fprintf(w, ", %d skipped in %s\n", s.Skipped, formatMillis(float64(s.DurationMS)))

	for _, f := range s.Failures {
		fmt.Fprint(w, "    ")
		_, _ = statusColor(f.Status).Fprint(w, "✗ ")
		fmt.Fprint(w, f.TestID)
		if msg, _, _ := strings.Cut(f.ErrorMessage, "\n"); msg != "" {
			_, _ = dim.Fprintf(w, ": %s", msg)
		}
		fmt.Fprintln(w)
	}

	if len(s.FlakyTests) > 0 {
		_, _ = color.New(color.FgYellow).Fprintf(w, "  %d flaky test(s) in this run:\n", len(s.FlakyTests))
		for _, f := range s.FlakyTests {
			fmt.Fprintf(w, "    %s ", f.TestID)
			_, _ = dim.Fprintf(w, "(score %.2f)\n", f.FlakyScore)
		}
	}
}

func printTest(w io.Writer, t *models.Test) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintln(w, t.ID)
	fmt.Fprintf(w, "  Status:     %s\n", statusColor(t.Status).Sprint(t.Status))
	fmt.Fprintf(w, "  Framework:  %s (%s, %s)\n", t.Framework, t.Language, t.TestType)
	fmt.Fprintf(w, "  Path:       %s\n", t.Path)
	if t.TargetSymbol != "" {
		fmt.Fprintf(w, "  Covers:     %s\n", t.TargetSymbol)
	}
	fmt.Fprintf(w, "  Runs:       %d\n", len(t.ExecutionHistory))
	fmt.Fprintf(w, "  Last run:   %s ", t.LastRunAt.Format("2006-01-02 15:04:05"))
	_, _ = dim.Fprintf(w, "(%s)\n", formatMillis(float64(t.LastDuration)))
	fmt.Fprint(w, "  Flakiness:  ")
	printScoreBar(w, t.FlakyScore)
}

func printPerformance(w io.Writer, p *models.TestPerformanceMetrics) {
	fmt.Fprintf(w, "Average:      %s\n", formatMillis(p.AverageExecutionTime))
	fmt.Fprintf(w, "P95:          %s\n", formatMillis(float64(p.P95ExecutionTime)))
	fmt.Fprintf(w, "Success rate: %.0f%%\n", p.SuccessRate*100)
	fmt.Fprintf(w, "Trend:        %s\n", trendColor(p.Trend).Sprint(p.Trend))
	fmt.Fprintf(w, "Data points:  %d\n", len(p.HistoricalData))
}

func printFlaky(w io.Writer, a models.FlakyTestAnalysis) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprint(w, a.TestID)
	_, _ = dim.Fprintf(w, "  analyzed %s\n", a.AnalyzedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprint(w, "  ")
	printScoreBar(w, a.FlakyScore)
	fmt.Fprintf(w, "  Runs: %d (%d passed, %d failed, %d skipped), failure rate %.0f%%\n",
		a.TotalRuns, a.PassedRuns, a.FailedRuns, a.SkippedRuns, a.FailureRate*100)
	fmt.Fprintf(w, "  Recent failure rate %.0f%%, alternating %.0f%%, duration stddev %s\n",
		a.Patterns.RecentFailureRate*100, a.Patterns.AlternatingRatio*100, formatMillis(a.Patterns.DurationStdDevMS))

	if len(a.Patterns.CommonErrors) > 0 {
		_, _ = bold.Fprintln(w, "  Common errors")
		for _, e := range a.Patterns.CommonErrors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	if len(a.Recommendations) > 0 {
		_, _ = bold.Fprintln(w, "  Recommendations")
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "    - %s\n", r)
		}
	}
}

func printCoverage(w io.Writer, c *models.CoverageAnalysis) {
	bold := color.New(color.Bold)

	_, _ = bold.Fprintln(w, c.EntityID)
	if len(c.TestIDs) == 0 {
		fmt.Fprintln(w, "  No tests provide coverage.")
		return
	}
	fmt.Fprintf(w, "  Overall      %s\n", formatCoverage(c.OverallCoverage))

	types := make([]string, 0, len(c.ByTestType))
	for t := range c.ByTestType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-12s %s\n", t, formatCoverage(c.ByTestType[models.TestType(t)]))
	}

	_, _ = bold.Fprintf(w, "  Tests (%d)\n", len(c.TestIDs))
	for _, id := range c.TestIDs {
		fmt.Fprintf(w, "    %s\n", id)
	}
}

// printScoreBar draws a flakiness score in [0,1] as a colored bar.
func printScoreBar(w io.Writer, score float64) {
	const barWidth = 24
	filled := int(score * barWidth)
	filled = max(0, min(filled, barWidth))

	var barColor *color.Color
	switch {
	case score > 0.7:
		barColor = color.New(color.FgRed)
	case score > 0.3:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgGreen)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(w, "Score: %.2f ", score)
	_, _ = barColor.Fprintln(w, bar)
}

func statusColor(s models.TestStatus) *color.Color {
	switch s {
	case models.StatusPassed:
		return color.New(color.FgGreen)
	case models.StatusFailed, models.StatusError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func trendColor(t models.Trend) *color.Color {
	switch t {
	case models.TrendImproving:
		return color.New(color.FgGreen)
	case models.TrendDegrading:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

func formatCoverage(c models.CoverageMetrics) string {
	return fmt.Sprintf("lines %.1f%%  branches %.1f%%  functions %.1f%%  statements %.1f%%",
		c.Lines, c.Branches, c.Functions, c.Statements)
}

func formatMillis(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}
