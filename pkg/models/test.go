package models

import "time"

// EntityTypeTest is the graph entity type of a Test.
const EntityTypeTest = "test"

// TestType classifies a test by scope
type TestType string

const (
	TestTypeUnit        TestType = "unit"
	TestTypeIntegration TestType = "integration"
	TestTypeE2E         TestType = "e2e"
)

// Trend describes the direction of a test's recent success rate
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// ExecutionEnvironment records where an execution ran.
type ExecutionEnvironment struct {
	Framework string `json:"framework"`
	Timestamp string `json:"timestamp"`
}

// TestExecution is one historical run record of a test
type TestExecution struct {
	ID           string               `json:"id"`
	Timestamp    time.Time            `json:"timestamp"`
	Status       TestStatus           `json:"status"`
	DurationMS   int64                `json:"duration"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
	StackTrace   string               `json:"stackTrace,omitempty"`
	Coverage     *CoverageMetrics     `json:"coverage,omitempty"`
	Performance  *PerformanceSample   `json:"performance,omitempty"`
	Environment  ExecutionEnvironment `json:"environment"`
}

// PerformanceDataPoint is one point of a test's performance series.
type PerformanceDataPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	ExecutionTime      int64     `json:"executionTime"`
	SuccessRate        float64   `json:"successRate"`
	CoveragePercentage float64   `json:"coveragePercentage"`
}

// TestPerformanceMetrics holds rolling statistics derived from execution history.
type TestPerformanceMetrics struct {
	AverageExecutionTime float64                `json:"averageExecutionTime"`
	P95ExecutionTime     int64                  `json:"p95ExecutionTime"`
	SuccessRate          float64                `json:"successRate"`
	Trend                Trend                  `json:"trend"`
	HistoricalData       []PerformanceDataPoint `json:"historicalData"`
}

// Test is the persistent entity tracking one test across runs.
type Test struct {
	ID                 string                 `json:"id"`
	Type               string                 `json:"type"`
	Path               string                 `json:"path"`
	Hash               string                 `json:"hash"`
	Language           string                 `json:"language"`
	TestType           TestType               `json:"testType"`
	Framework          string                 `json:"framework"`
	TargetSymbol       string                 `json:"targetSymbol,omitempty"`
	Status             TestStatus             `json:"status"`
	Coverage           CoverageMetrics        `json:"coverage"`
	FlakyScore         float64                `json:"flakyScore"`
	ExecutionHistory   []TestExecution        `json:"executionHistory"`
	PerformanceMetrics TestPerformanceMetrics `json:"performanceMetrics"`
	Tags               []string               `json:"tags"`
	LastRunAt          time.Time              `json:"lastRunAt"`
	LastDuration       int64                  `json:"lastDuration"`
	CreatedAt          time.Time              `json:"created"`
	UpdatedAt          time.Time              `json:"lastModified"`
}

// EntityID implements Entity.
func (t *Test) EntityID() string { return t.ID }

// EntityType implements Entity.
func (t *Test) EntityType() string { return t.Type }

// RecentExecutions returns at most n of the latest executions, oldest first.
func (t *Test) RecentExecutions(n int) []TestExecution {
	if n <= 0 || len(t.ExecutionHistory) <= n {
		return t.ExecutionHistory
	}
	return t.ExecutionHistory[len(t.ExecutionHistory)-n:]
}

// FlakyPatterns captures the signals behind a flaky score.
type FlakyPatterns struct {
	RecentFailureRate float64  `json:"recentFailureRate"`
	AlternatingRatio  float64  `json:"alternatingRatio"`
	DurationStdDevMS  float64  `json:"durationStdDev"`
	CommonErrors      []string `json:"commonErrors,omitempty"`
}

// FlakyTestAnalysis is a derived flakiness report for one test.
type FlakyTestAnalysis struct {
	TestID          string        `json:"testId"`
	TestName        string        `json:"testName"`
	FlakyScore      float64       `json:"flakyScore"`
	TotalRuns       int           `json:"totalRuns"`
	FailedRuns      int           `json:"failedRuns"`
	PassedRuns      int           `json:"passedRuns"`
	SkippedRuns     int           `json:"skippedRuns"`
	FailureRate     float64       `json:"failureRate"`
	Patterns        FlakyPatterns `json:"patterns"`
	Recommendations []string      `json:"recommendations"`
	AnalyzedAt      time.Time     `json:"analyzedAt"`
}

// CoverageAnalysis summarizes coverage of one target symbol across its tests.
type CoverageAnalysis struct {
	EntityID        string                       `json:"entityId"`
	OverallCoverage CoverageMetrics              `json:"overallCoverage"`
	ByTestType      map[TestType]CoverageMetrics `json:"coverageByTestType"`
	TestIDs         []string                     `json:"testIds"`
}
