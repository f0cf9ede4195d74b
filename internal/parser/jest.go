package parser

import (
	"encoding/json"
	"strings"

	"github.com/kamilpajak/testintel/pkg/models"
)

// JestParser parses Jest JSON reports (`jest --json` and the programmatic
// AggregatedResult shape).
type JestParser struct{}

// VitestParser parses Vitest JSON reports, which share Jest's schema.
type VitestParser struct {
	jest *JestParser
}

type jestReport struct {
	StartTime       float64          `json:"startTime"`
	TestResults     []jestFileResult `json:"testResults"`
	CoverageSummary *jestCoverage    `json:"coverageSummary"`
}

type jestFileResult struct {
	Name             string          `json:"name"`
	TestFilePath     string          `json:"testFilePath"`
	TestResults      []jestAssertion `json:"testResults"`
	AssertionResults []jestAssertion `json:"assertionResults"`
}

type jestAssertion struct {
	AncestorTitles  []string `json:"ancestorTitles"`
	FullName        string   `json:"fullName"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Duration        *float64 `json:"duration"`
	FailureMessages []string `json:"failureMessages"`
}

type jestCoverage struct {
	Total struct {
		Lines      jestPct `json:"lines"`
		Branches   jestPct `json:"branches"`
		Functions  jestPct `json:"functions"`
		Statements jestPct `json:"statements"`
	} `json:"total"`
}

type jestPct struct {
	Pct float64 `json:"pct"`
}

// Format implements Parser.
func (p *JestParser) Format() Format { return FormatJest }

// Parse implements Parser.
func (p *JestParser) Parse(content string) (*models.TestSuiteResult, error) {
	return p.parse(content, FormatJest, "Jest Suite")
}

// Format implements Parser.
func (p *VitestParser) Format() Format { return FormatVitest }

// Parse implements Parser by delegating to the Jest parser.
func (p *VitestParser) Parse(content string) (*models.TestSuiteResult, error) {
	jest := p.jest
	if jest == nil {
		jest = &JestParser{}
	}
	return jest.parse(content, FormatVitest, "Vitest Suite")
}

func (p *JestParser) parse(content string, format Format, fallbackName string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(format, "empty content", nil)
	}

	var raw jestReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, parseError(format, "invalid JSON", err)
	}

	name := fallbackName
	if len(raw.TestResults) == 1 {
		name = jestSuiteName(raw.TestResults[0], fallbackName)
	}

	suite := newSuite(name, format, unixMillis(raw.StartTime))
	if raw.CoverageSummary != nil {
		t := raw.CoverageSummary.Total
		suite.Coverage = &models.CoverageMetrics{
			Lines:      t.Lines.Pct,
			Branches:   t.Branches.Pct,
			Functions:  t.Functions.Pct,
			Statements: t.Statements.Pct,
		}
	}

	for _, file := range raw.TestResults {
		fileName := jestSuiteName(file, fallbackName)
		assertions := file.TestResults
		if len(assertions) == 0 {
			assertions = file.AssertionResults
		}
		for _, a := range assertions {
			suite.Add(jestResult(fileName, a))
		}
	}

	return suite, nil
}

func jestSuiteName(file jestFileResult, fallback string) string {
	return firstNonEmpty(file.TestFilePath, file.Name, fallback)
}

func jestResult(suiteName string, a jestAssertion) models.TestResult {
	fullName := firstNonEmpty(a.FullName, joinTitles(" ", append(append([]string{}, a.AncestorTitles...), a.Title)...))

	result := models.TestResult{
		TestID:    suiteName + "#" + fullName,
		TestSuite: suiteName,
		TestName:  firstNonEmpty(a.Title, fullName),
		Status:    jestStatus(a.Status),
	}
	if a.Duration != nil {
		result.DurationMS = millis(*a.Duration)
	}
	if len(a.FailureMessages) > 0 {
		msg := strings.Join(a.FailureMessages, "\n")
		result.ErrorMessage = msg
		result.StackTrace = msg
	}
	return result
}

func jestStatus(s string) models.TestStatus {
	switch s {
	case "passed":
		return models.StatusPassed
	case "failed":
		return models.StatusFailed
	case "pending", "todo":
		return models.StatusSkipped
	default:
		return models.StatusError
	}
}
