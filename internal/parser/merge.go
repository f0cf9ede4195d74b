package parser

import "github.com/kamilpajak/testintel/pkg/models"

// MergedSuiteName is the suite name given to a result built from several fragments.
const MergedSuiteName = "Merged Test Suites"

// MergeSuites combines suite fragments found in one input into a single result.
// A single fragment is returned unchanged. The merged result keeps the first
// fragment's timestamp and framework and concatenates results in fragment order.
func MergeSuites(format Format, fragments []*models.TestSuiteResult) (*models.TestSuiteResult, error) {
	switch len(fragments) {
	case 0:
		return nil, parseError(format, "no suites found", nil)
	case 1:
		return fragments[0], nil
	}

	first := fragments[0]
	merged := &models.TestSuiteResult{
		SuiteName: MergedSuiteName,
		Timestamp: first.Timestamp,
		Framework: first.Framework,
		Coverage:  first.Coverage,
	}

	total := 0
	for _, f := range fragments {
		total += len(f.Results)
	}
	merged.Results = make([]models.TestResult, 0, total)
	for _, f := range fragments {
		merged.Results = append(merged.Results, f.Results...)
	}

	// Fragment counters are not trusted; totals come from the results themselves.
	merged.Recount()
	return merged, nil
}
