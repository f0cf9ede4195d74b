package parser

import (
	"encoding/json"

	"github.com/kamilpajak/testintel/pkg/models"
)

// MochaParser parses Mocha JSON reports in the nested-suite (mochawesome)
// layout and the flat `--reporter json` layout.
type MochaParser struct{}

type mochaReport struct {
	Stats   mochaStats   `json:"stats"`
	Results []mochaSuite `json:"results"`
	Suites  []mochaSuite `json:"suites"`

	// Flat reporter layout.
	Tests    []mochaTest `json:"tests"`
	Failures []mochaTest `json:"failures"`
	Pending  []mochaTest `json:"pending"`
}

type mochaStats struct {
	Start string `json:"start"`
}

type mochaSuite struct {
	Title  string       `json:"title"`
	File   string       `json:"file"`
	Tests  []mochaTest  `json:"tests"`
	Suites []mochaSuite `json:"suites"`
}

type mochaTest struct {
	Title     string   `json:"title"`
	FullTitle string   `json:"fullTitle"`
	File      string   `json:"file"`
	Duration  float64  `json:"duration"`
	State     string   `json:"state"`
	Pending   bool     `json:"pending"`
	Err       mochaErr `json:"err"`
}

type mochaErr struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	EStack  string `json:"estack"`
}

// Format implements Parser.
func (p *MochaParser) Format() Format { return FormatMocha }

// Parse implements Parser.
func (p *MochaParser) Parse(content string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(FormatMocha, "empty content", nil)
	}

	var raw mochaReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, parseError(FormatMocha, "invalid JSON", err)
	}

	suite := newSuite("Mocha Suite", FormatMocha, parseTimestamp(raw.Stats.Start))

	roots := append(append([]mochaSuite{}, raw.Results...), raw.Suites...)
	for _, root := range roots {
		p.walk(suite, root, "")
	}

	if len(roots) == 0 {
		p.flat(suite, raw)
	}

	return suite, nil
}

func (p *MochaParser) walk(suite *models.TestSuiteResult, s mochaSuite, parent string) {
	path := joinTitles(" > ", parent, s.Title)
	name := firstNonEmpty(path, s.File, suite.SuiteName)

	for _, t := range s.Tests {
		suite.Add(mochaResult(name, t, mochaStatus(t.State)))
	}
	for _, child := range s.Suites {
		p.walk(suite, child, path)
	}
}

func (p *MochaParser) flat(suite *models.TestSuiteResult, raw mochaReport) {
	failed := make(map[string]bool, len(raw.Failures))
	for _, t := range raw.Failures {
		failed[t.FullTitle] = true
	}
	pending := make(map[string]bool, len(raw.Pending))
	for _, t := range raw.Pending {
		pending[t.FullTitle] = true
	}

	for _, t := range raw.Tests {
		state := "passed"
		switch {
		case failed[t.FullTitle] || t.Err.Message != "":
			state = "failed"
		case pending[t.FullTitle] || t.Pending:
			state = "pending"
		}
		suite.Add(mochaResult(firstNonEmpty(t.File, suite.SuiteName), t, mochaStatus(state)))
	}
}

func mochaResult(suiteName string, t mochaTest, status models.TestStatus) models.TestResult {
	fullTitle := firstNonEmpty(t.FullTitle, t.Title)
	result := models.TestResult{
		TestID:     suiteName + "#" + fullTitle,
		TestSuite:  suiteName,
		TestName:   firstNonEmpty(t.Title, fullTitle),
		Status:     status,
		DurationMS: millis(t.Duration),
	}
	if status == models.StatusFailed {
		result.ErrorMessage = t.Err.Message
		result.StackTrace = firstNonEmpty(t.Err.EStack, t.Err.Stack)
	}
	return result
}

func mochaStatus(state string) models.TestStatus {
	switch state {
	case "passed":
		return models.StatusPassed
	case "failed":
		return models.StatusFailed
	default:
		return models.StatusSkipped
	}
}
