// Package parser converts framework-specific test reports into the canonical
// models.TestSuiteResult shape.
package parser

import (
	"math"
	"strings"
	"time"

	"github.com/kamilpajak/testintel/pkg/models"
)

// Format identifies a supported report format
type Format string

const (
	FormatJUnit      Format = "junit"
	FormatJest       Format = "jest"
	FormatMocha      Format = "mocha"
	FormatVitest     Format = "vitest"
	FormatCypress    Format = "cypress"
	FormatPlaywright Format = "playwright"
	// FormatCanonical is the models.TestSuiteResult JSON shape itself.
	FormatCanonical Format = "canonical"
	// FormatAuto asks Registry.Parse to detect the format from the content.
	FormatAuto Format = "auto"
)

// Formats lists every concrete format in a stable order.
var Formats = []Format{FormatJUnit, FormatJest, FormatMocha, FormatVitest, FormatCypress, FormatPlaywright, FormatCanonical}

// Parser converts raw report text of one format into a suite result.
type Parser interface {
	// Parse converts the report. Empty or unreadable content is a *ParseError.
	Parse(content string) (*models.TestSuiteResult, error)
	// Format returns the format this parser handles.
	Format() Format
}

// Options tune the registry's parsers.
type Options struct {
	// OnMalformed receives fragments that were skipped while parsing.
	OnMalformed func(MalformedFragment)
}

// Registry maps format tags to their parsers.
type Registry struct {
	parsers map[Format]Parser
}

// NewRegistry creates a registry with all built-in parsers.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		parsers: make(map[Format]Parser),
	}

	jest := &JestParser{}
	r.parsers[FormatJUnit] = &JUnitParser{OnMalformed: opts.OnMalformed}
	r.parsers[FormatJest] = jest
	r.parsers[FormatVitest] = &VitestParser{jest: jest}
	r.parsers[FormatMocha] = &MochaParser{}
	r.parsers[FormatCypress] = &CypressParser{}
	r.parsers[FormatPlaywright] = &PlaywrightParser{}
	r.parsers[FormatCanonical] = &CanonicalParser{}

	return r
}

// Get returns the parser for a format, or nil if the format is unsupported.
func (r *Registry) Get(format Format) Parser {
	return r.parsers[Format(strings.ToLower(string(format)))]
}

// Register adds or replaces the parser for its format.
func (r *Registry) Register(p Parser) {
	r.parsers[p.Format()] = p
}

// Parse dispatches content to the parser registered for format.
func (r *Registry) Parse(content string, format Format) (*models.TestSuiteResult, error) {
	if strings.EqualFold(string(format), string(FormatAuto)) {
		detected, err := DetectFormat("", content)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	p := r.Get(format)
	if p == nil {
		return nil, parseError(format, "unsupported format", nil)
	}
	return p.Parse(content)
}

var defaultRegistry = NewRegistry(Options{})

// Parse converts content using the built-in parser for format.
func Parse(content string, format Format) (*models.TestSuiteResult, error) {
	return defaultRegistry.Parse(content, format)
}

// timeNow is swapped in tests.
var timeNow = time.Now

func newSuite(name string, framework Format, ts time.Time) *models.TestSuiteResult {
	if ts.IsZero() {
		ts = timeNow().UTC()
	}
	return &models.TestSuiteResult{
		SuiteName: name,
		Timestamp: ts,
		Framework: string(framework),
		Results:   make([]models.TestResult, 0),
	}
}

func isBlank(content string) bool {
	return strings.TrimSpace(content) == ""
}

// millis rounds a millisecond value that may carry a fraction.
func millis(v float64) int64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v))
}

func unixMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinTitles(sep string, titles ...string) string {
	parts := make([]string, 0, len(titles))
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, sep)
}

// parseTimestamp accepts RFC 3339 and the zone-less form JUnit writers emit.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
