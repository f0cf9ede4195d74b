package parser

import (
	"encoding/json"
	"strings"

	"github.com/kamilpajak/testintel/pkg/models"
)

// PlaywrightParser parses Playwright JSON reports
type PlaywrightParser struct{}

// playwrightReport represents the raw Playwright JSON structure
type playwrightReport struct {
	Config *json.RawMessage  `json:"config"`
	Suites []playwrightSuite `json:"suites"`
	Stats  playwrightStats   `json:"stats"`
}

type playwrightStats struct {
	StartTime string `json:"startTime"`
}

type playwrightSuite struct {
	Title  string            `json:"title"`
	File   string            `json:"file"`
	Specs  []playwrightSpec  `json:"specs"`
	Suites []playwrightSuite `json:"suites"`
}

type playwrightSpec struct {
	Title string           `json:"title"`
	File  string           `json:"file"`
	Line  int              `json:"line"`
	Tests []playwrightTest `json:"tests"`
}

type playwrightTest struct {
	ProjectName string             `json:"projectName"`
	Status      string             `json:"status"`
	Results     []playwrightResult `json:"results"`
}

type playwrightResult struct {
	Status   string            `json:"status"`
	Duration float64           `json:"duration"`
	Retry    int               `json:"retry"`
	Error    *playwrightError  `json:"error"`
	Errors   []playwrightError `json:"errors"`
}

type playwrightError struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// Format implements Parser.
func (p *PlaywrightParser) Format() Format { return FormatPlaywright }

// Parse implements Parser. Every result attempt, retries included, becomes
// its own TestResult.
func (p *PlaywrightParser) Parse(content string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(FormatPlaywright, "empty content", nil)
	}

	var raw playwrightReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, parseError(FormatPlaywright, "invalid JSON", err)
	}

	return p.normalize(raw), nil
}

func (p *PlaywrightParser) normalize(raw playwrightReport) *models.TestSuiteResult {
	name := "Playwright Suite"
	if len(raw.Suites) == 1 {
		name = firstNonEmpty(raw.Suites[0].File, raw.Suites[0].Title, name)
	}

	suite := newSuite(name, FormatPlaywright, parseTimestamp(raw.Stats.StartTime))
	for _, s := range raw.Suites {
		p.walk(suite, s, firstNonEmpty(s.File, s.Title), nil)
	}
	return suite
}

// walk descends nested describe blocks. file is the spec file the top-level
// suite belongs to; titles holds the describe titles below it.
func (p *PlaywrightParser) walk(suite *models.TestSuiteResult, s playwrightSuite, file string, titles []string) {
	for _, spec := range s.Specs {
		specFile := firstNonEmpty(spec.File, file)
		title := joinTitles(" > ", append(append([]string{}, titles...), spec.Title)...)
		for _, test := range spec.Tests {
			testID := specFile + "#" + title
			if test.ProjectName != "" {
				testID += " [" + test.ProjectName + "]"
			}
			for _, attempt := range test.Results {
				suite.Add(playwrightAttempt(testID, specFile, spec.Title, attempt))
			}
		}
	}

	for _, nested := range s.Suites {
		// A nested suite with its own file is a file node, not a describe block.
		if nested.File != "" && nested.File != file && nested.Title == nested.File {
			p.walk(suite, nested, nested.File, nil)
			continue
		}
		p.walk(suite, nested, file, append(append([]string{}, titles...), nested.Title))
	}
}

func playwrightAttempt(testID, suiteName, name string, r playwrightResult) models.TestResult {
	result := models.TestResult{
		TestID:     testID,
		TestSuite:  suiteName,
		TestName:   name,
		Status:     playwrightStatus(r.Status),
		DurationMS: millis(r.Duration),
	}

	errs := r.Errors
	if len(errs) == 0 && r.Error != nil {
		errs = []playwrightError{*r.Error}
	}
	if len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, e := range errs {
			if e.Message != "" {
				messages = append(messages, e.Message)
			}
		}
		result.ErrorMessage = strings.Join(messages, "\n")
		result.StackTrace = errs[0].Stack
	}

	return result
}

func playwrightStatus(s string) models.TestStatus {
	switch s {
	case "passed":
		return models.StatusPassed
	case "failed":
		return models.StatusFailed
	case "skipped", "pending":
		return models.StatusSkipped
	default:
		// timedOut, interrupted and unknown states
		return models.StatusError
	}
}
