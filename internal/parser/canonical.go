package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kamilpajak/testintel/pkg/models"
)

// CanonicalParser reads reports already in the models.TestSuiteResult JSON
// shape, e.g. written by a custom reporter. It is the one format that carries
// per-test coverage and target symbols end to end.
type CanonicalParser struct{}

// Format implements Parser.
func (p *CanonicalParser) Format() Format { return FormatCanonical }

// Parse implements Parser. Statuses are validated and counters recomputed
// from the results.
func (p *CanonicalParser) Parse(content string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(FormatCanonical, "empty content", nil)
	}

	var raw models.TestSuiteResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, parseError(FormatCanonical, "invalid JSON", err)
	}

	suite := newSuite(firstNonEmpty(raw.SuiteName, "Test Suite"), FormatCanonical, raw.Timestamp.UTC())
	suite.Framework = firstNonEmpty(raw.Framework, string(FormatCanonical))
	suite.Coverage = raw.Coverage
	suite.Results = raw.Results
	if suite.Results == nil {
		suite.Results = make([]models.TestResult, 0)
	}

	for i := range suite.Results {
		r := &suite.Results[i]
		if strings.TrimSpace(r.TestID) == "" {
			return nil, parseError(FormatCanonical, fmt.Sprintf("result %d has no testId", i), nil)
		}
		status, err := models.ParseTestStatus(string(r.Status))
		if err != nil {
			return nil, parseError(FormatCanonical, fmt.Sprintf("result %d", i), err)
		}
		r.Status = status
		r.TestName = firstNonEmpty(r.TestName, r.TestID)
		r.TestSuite = firstNonEmpty(r.TestSuite, suite.SuiteName)
		if r.DurationMS < 0 {
			r.DurationMS = 0
		}
	}

	suite.Recount()
	return suite, nil
}
