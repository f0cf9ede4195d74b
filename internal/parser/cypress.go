package parser

import (
	"encoding/json"

	"github.com/kamilpajak/testintel/pkg/models"
)

// CypressRunName is the suite name used when a report carries several specs.
const CypressRunName = "Cypress Run"

// CypressParser parses results written by `cypress run` (module API output
// and the cypress-json reporters built on it).
type CypressParser struct{}

type cypressReport struct {
	StartedTestsAt string       `json:"startedTestsAt"`
	Runs           []cypressRun `json:"runs"`
}

type cypressRun struct {
	Spec  cypressSpec   `json:"spec"`
	Stats cypressStats  `json:"stats"`
	Tests []cypressTest `json:"tests"`
}

type cypressSpec struct {
	Name     string `json:"name"`
	Relative string `json:"relative"`
}

type cypressStats struct {
	StartedAt string `json:"startedAt"`
}

type cypressTest struct {
	Title        cypressTitle     `json:"title"`
	State        string           `json:"state"`
	Duration     *float64         `json:"duration"`
	DisplayError string           `json:"displayError"`
	Attempts     []cypressAttempt `json:"attempts"`
}

type cypressAttempt struct {
	State             string        `json:"state"`
	Duration          float64       `json:"duration"`
	WallClockDuration float64       `json:"wallClockDuration"`
	Error             *cypressError `json:"error"`
}

type cypressError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// cypressTitle accepts both a plain string and the list of nested
// describe/it titles.
type cypressTitle []string

func (t *cypressTitle) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = cypressTitle{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// Format implements Parser.
func (p *CypressParser) Format() Format { return FormatCypress }

// Parse implements Parser. Every run's tests are flattened into one suite.
func (p *CypressParser) Parse(content string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(FormatCypress, "empty content", nil)
	}

	var raw cypressReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, parseError(FormatCypress, "invalid JSON", err)
	}

	name := CypressRunName
	if len(raw.Runs) == 1 {
		name = firstNonEmpty(cypressSpecName(raw.Runs[0].Spec), CypressRunName)
	}

	started := raw.StartedTestsAt
	if started == "" && len(raw.Runs) > 0 {
		started = raw.Runs[0].Stats.StartedAt
	}
	suite := newSuite(name, FormatCypress, parseTimestamp(started))

	for _, run := range raw.Runs {
		specName := firstNonEmpty(cypressSpecName(run.Spec), CypressRunName)
		for _, t := range run.Tests {
			suite.Add(cypressResult(specName, t))
		}
	}

	return suite, nil
}

func cypressSpecName(spec cypressSpec) string {
	return firstNonEmpty(spec.Relative, spec.Name)
}

func cypressResult(specName string, t cypressTest) models.TestResult {
	title := joinTitles(" > ", t.Title...)
	leaf := ""
	if len(t.Title) > 0 {
		leaf = t.Title[len(t.Title)-1]
	}

	result := models.TestResult{
		TestID:    specName + "#" + title,
		TestSuite: specName,
		TestName:  firstNonEmpty(leaf, title),
		Status:    cypressStatus(t.State),
	}

	if t.Duration != nil {
		result.DurationMS = millis(*t.Duration)
	} else {
		var total float64
		for _, a := range t.Attempts {
			total += firstPositive(a.WallClockDuration, a.Duration)
		}
		result.DurationMS = millis(total)
	}

	if result.Status.IsFailure() {
		result.ErrorMessage = t.DisplayError
		for i := len(t.Attempts) - 1; i >= 0; i-- {
			if e := t.Attempts[i].Error; e != nil {
				result.ErrorMessage = firstNonEmpty(result.ErrorMessage, e.Message)
				result.StackTrace = e.Stack
				break
			}
		}
		if result.StackTrace == "" {
			result.StackTrace = t.DisplayError
		}
	}

	return result
}

func cypressStatus(state string) models.TestStatus {
	switch state {
	case "passed":
		return models.StatusPassed
	case "failed":
		return models.StatusFailed
	case "pending", "skipped":
		return models.StatusSkipped
	default:
		return models.StatusError
	}
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
