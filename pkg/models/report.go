package models

import (
	"fmt"
	"time"
)

// TestStatus represents the status of a test case
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusSkipped TestStatus = "skipped"
	StatusError   TestStatus = "error"
)

// ParseTestStatus validates a status string against the closed set of statuses.
func ParseTestStatus(s string) (TestStatus, error) {
	switch st := TestStatus(s); st {
	case StatusPassed, StatusFailed, StatusSkipped, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("invalid test status %q", s)
}

// IsFailure reports whether the status counts as a failed run.
func (s TestStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusError
}

// CoverageMetrics holds percentage-like coverage numbers for one test or suite.
type CoverageMetrics struct {
	Lines      float64 `json:"lines"`
	Branches   float64 `json:"branches"`
	Functions  float64 `json:"functions"`
	Statements float64 `json:"statements"`
}

// PerformanceSample holds resource samples taken while a test ran.
type PerformanceSample struct {
	MemoryUsageMB   float64 `json:"memoryUsage,omitempty"`
	CPUUsagePercent float64 `json:"cpuUsage,omitempty"`
	NetworkRequests float64 `json:"networkRequests,omitempty"`
}

// TestResult represents one test's outcome in one run
type TestResult struct {
	TestID       string             `json:"testId"`
	TestSuite    string             `json:"testSuite"`
	TestName     string             `json:"testName"`
	Status       TestStatus         `json:"status"`
	DurationMS   int64              `json:"duration"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	StackTrace   string             `json:"stackTrace,omitempty"`
	Coverage     *CoverageMetrics   `json:"coverage,omitempty"`
	Performance  *PerformanceSample `json:"performance,omitempty"`
	// TargetSymbol is the code symbol the test exercises, when the reporter knows it.
	TargetSymbol string `json:"targetSymbol,omitempty"`
}

// TestSuiteResult represents a normalized test report for one run
type TestSuiteResult struct {
	SuiteName    string           `json:"suiteName"`
	Timestamp    time.Time        `json:"timestamp"`
	Framework    string           `json:"framework"`
	TotalTests   int              `json:"totalTests"`
	PassedTests  int              `json:"passedTests"`
	FailedTests  int              `json:"failedTests"`
	SkippedTests int              `json:"skippedTests"`
	DurationMS   int64            `json:"duration"`
	Results      []TestResult     `json:"results"`
	Coverage     *CoverageMetrics `json:"coverage,omitempty"`
}

// HasFailures returns true if the report contains any failures
func (r *TestSuiteResult) HasFailures() bool {
	return r.FailedTests > 0
}

// FailedResults returns all failed or errored results from the report
func (r *TestSuiteResult) FailedResults() []TestResult {
	var failed []TestResult
	for _, result := range r.Results {
		if result.Status.IsFailure() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Add appends a result and folds it into the suite counters. Errors count as failures.
func (r *TestSuiteResult) Add(result TestResult) {
	r.Results = append(r.Results, result)
	r.TotalTests++
	switch {
	case result.Status == StatusPassed:
		r.PassedTests++
	case result.Status == StatusSkipped:
		r.SkippedTests++
	case result.Status.IsFailure():
		r.FailedTests++
	}
	r.DurationMS += result.DurationMS
}

// Recount recomputes the counters from Results, ignoring whatever the source claimed.
func (r *TestSuiteResult) Recount() {
	results := r.Results
	r.Results = make([]TestResult, 0, len(results))
	r.TotalTests, r.PassedTests, r.FailedTests, r.SkippedTests = 0, 0, 0, 0
	r.DurationMS = 0
	for _, result := range results {
		r.Add(result)
	}
}
