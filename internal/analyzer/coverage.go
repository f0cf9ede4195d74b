package analyzer

import "github.com/kamilpajak/testintel/pkg/models"

// AggregateCoverage averages each coverage dimension independently.
// No input yields zero metrics.
func AggregateCoverage(coverages []models.CoverageMetrics) models.CoverageMetrics {
	if len(coverages) == 0 {
		return models.CoverageMetrics{}
	}

	var sum models.CoverageMetrics
	for _, c := range coverages {
		sum.Lines += c.Lines
		sum.Branches += c.Branches
		sum.Functions += c.Functions
		sum.Statements += c.Statements
	}

	n := float64(len(coverages))
	return models.CoverageMetrics{
		Lines:      sum.Lines / n,
		Branches:   sum.Branches / n,
		Functions:  sum.Functions / n,
		Statements: sum.Statements / n,
	}
}

// CoverageBreakdown aggregates coverage per test type. Every type is present
// in the result, zeroed when no test of that type exists.
func CoverageBreakdown(tests []*models.Test) map[models.TestType]models.CoverageMetrics {
	byType := map[models.TestType][]models.CoverageMetrics{
		models.TestTypeUnit:        nil,
		models.TestTypeIntegration: nil,
		models.TestTypeE2E:         nil,
	}
	for _, t := range tests {
		byType[t.TestType] = append(byType[t.TestType], t.Coverage)
	}

	breakdown := make(map[models.TestType]models.CoverageMetrics, len(byType))
	for testType, coverages := range byType {
		breakdown[testType] = AggregateCoverage(coverages)
	}
	return breakdown
}

// AnalyzeCoverage builds the coverage analysis of a symbol from the tests
// that cover it.
func AnalyzeCoverage(symbolID string, tests []*models.Test) models.CoverageAnalysis {
	coverages := make([]models.CoverageMetrics, 0, len(tests))
	ids := make([]string, 0, len(tests))
	for _, t := range tests {
		coverages = append(coverages, t.Coverage)
		ids = append(ids, t.ID)
	}

	return models.CoverageAnalysis{
		EntityID:        symbolID,
		OverallCoverage: AggregateCoverage(coverages),
		ByTestType:      CoverageBreakdown(tests),
		TestIDs:         ids,
	}
}
