// Package analyzer derives flakiness scores, performance statistics and
// coverage aggregates from test results and execution history.
package analyzer

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Settings holds the tunable thresholds and window sizes used by the analyzer.
type Settings struct {
	// FlakyThreshold is the score a batch group must exceed to be reported.
	FlakyThreshold float64 `yaml:"flaky_threshold"`
	// HighFlakyThreshold and MediumFlakyThreshold select recommendation tiers.
	HighFlakyThreshold   float64 `yaml:"high_flaky_threshold"`
	MediumFlakyThreshold float64 `yaml:"medium_flaky_threshold"`

	// RecentWindow is how many of a group's latest results feed its recent failure rate.
	RecentWindow int `yaml:"recent_window"`

	CumulativeWindow       int `yaml:"cumulative_window"`
	CumulativeRecentWindow int `yaml:"cumulative_recent_window"`
	MinCumulativeHistory   int `yaml:"min_cumulative_history"`

	TrendWindow int     `yaml:"trend_window"`
	TrendDelta  float64 `yaml:"trend_delta"`

	// HistoricalDataCap bounds the performance series; oldest points are dropped.
	HistoricalDataCap int `yaml:"historical_data_cap"`
}

// DefaultSettings returns the standard analysis settings.
func DefaultSettings() Settings {
	return Settings{
		FlakyThreshold:         0.3,
		HighFlakyThreshold:     0.7,
		MediumFlakyThreshold:   0.5,
		RecentWindow:           10,
		CumulativeWindow:       20,
		CumulativeRecentWindow: 5,
		MinCumulativeHistory:   3,
		TrendWindow:            5,
		TrendDelta:             0.1,
		HistoricalDataCap:      100,
	}
}

// Validate checks thresholds and windows.
func (s Settings) Validate() error {
	var result *multierror.Error

	thresholds := []struct {
		name  string
		value float64
	}{
		{"flaky_threshold", s.FlakyThreshold},
		{"high_flaky_threshold", s.HighFlakyThreshold},
		{"medium_flaky_threshold", s.MediumFlakyThreshold},
		{"trend_delta", s.TrendDelta},
	}
	for _, t := range thresholds {
		if t.value < 0 || t.value > 1 {
			result = multierror.Append(result, fmt.Errorf("%s must be within [0,1], got %v", t.name, t.value))
		}
	}

	windows := []struct {
		name  string
		value int
	}{
		{"recent_window", s.RecentWindow},
		{"cumulative_window", s.CumulativeWindow},
		{"cumulative_recent_window", s.CumulativeRecentWindow},
		{"min_cumulative_history", s.MinCumulativeHistory},
		{"trend_window", s.TrendWindow},
		{"historical_data_cap", s.HistoricalDataCap},
	}
	for _, w := range windows {
		if w.value <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive, got %d", w.name, w.value))
		}
	}

	return result.ErrorOrNil()
}

// Analyzer computes derived test statistics. It holds no state besides its
// settings and is safe for concurrent use.
type Analyzer struct {
	settings Settings
	now      func() time.Time
}

// New creates a new Analyzer
func New(settings Settings) *Analyzer {
	return &Analyzer{
		settings: settings,
		now:      time.Now,
	}
}

// Settings returns the analyzer's settings.
func (a *Analyzer) Settings() Settings {
	return a.settings
}
