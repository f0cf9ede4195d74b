package parser

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/kamilpajak/testintel/pkg/models"
)

// JUnitParser parses JUnit XML reports.
//
// It scans for <testsuite> and <testcase> blocks with regular expressions
// instead of a full XML decoder so that truncated or partially corrupt
// reports still yield every readable test case.
type JUnitParser struct {
	// OnMalformed is called for every skipped <testcase> fragment.
	OnMalformed func(MalformedFragment)
}

// junitAttrs matches a tag's attribute list, including quoted values that contain '>'.
const junitAttrs = `((?:[^>"']|"[^"]*"|'[^']*')*?)`

var (
	junitSuiteTagRe = regexp.MustCompile(`<testsuite\b` + junitAttrs + `(/?)>|</testsuite\s*>`)
	junitCaseOpenRe = regexp.MustCompile(`<testcase\b` + junitAttrs + `(/?)>`)
	junitCaseClose  = "</testcase>"
	junitAttrRe     = regexp.MustCompile(`([\w:.-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	junitFailureRe  = regexp.MustCompile(`(?s)<failure\b` + junitAttrs + `(?:/>|>(.*?)</failure>)`)
	junitErrorRe    = regexp.MustCompile(`(?s)<error\b` + junitAttrs + `(?:/>|>(.*?)</error>)`)
	junitSkippedRe  = regexp.MustCompile(`(?s)<skipped\b` + junitAttrs + `(?:/>|>(.*?)</skipped>)`)
	junitPropertyRe = regexp.MustCompile(`<property\b` + junitAttrs + `/?>`)
	junitCDATARe    = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
)

// Test case properties understood by the parser.
const (
	junitTargetSymbolProperty = "targetSymbol"
	junitCoveragePrefix       = "coverage."
)

// Format implements Parser.
func (p *JUnitParser) Format() Format { return FormatJUnit }

type junitFrame struct {
	suite  *models.TestSuiteResult
	offset int
	nested bool
}

// Parse reads every <testsuite> block and merges them into one suite result.
// Nested suites become fragments of their own; cases belong to the innermost
// enclosing suite.
func (p *JUnitParser) Parse(content string) (*models.TestSuiteResult, error) {
	if isBlank(content) {
		return nil, parseError(FormatJUnit, "empty content", nil)
	}

	var (
		frames []*junitFrame
		stack  []*junitFrame
		pos    int
	)
	for _, m := range junitSuiteTagRe.FindAllStringSubmatchIndex(content, -1) {
		if len(stack) > 0 {
			p.parseCases(stack[len(stack)-1].suite, content[pos:m[0]], pos)
		}
		pos = m[1]

		if m[2] < 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		if len(stack) > 0 {
			stack[len(stack)-1].nested = true
		}
		attrs := parseAttrs(content[m[2]:m[3]])
		name := firstNonEmpty(attrs["name"], "JUnit Suite")
		frame := &junitFrame{
			suite:  newSuite(name, FormatJUnit, parseTimestamp(attrs["timestamp"])),
			offset: m[0],
		}
		frames = append(frames, frame)
		if content[m[4]:m[5]] != "/" {
			stack = append(stack, frame)
		}
	}

	// Unterminated suites keep the cases that could be read.
	if len(stack) > 0 {
		p.parseCases(stack[len(stack)-1].suite, content[pos:], pos)
		for _, f := range stack {
			p.malformed(f.offset, content[f.offset:min(len(content), f.offset+120)])
		}
	}

	fragments := make([]*models.TestSuiteResult, 0, len(frames))
	for _, f := range frames {
		// A wrapper suite whose cases all live in child suites adds nothing.
		if f.nested && len(f.suite.Results) == 0 {
			continue
		}
		fragments = append(fragments, f.suite)
	}

	return MergeSuites(FormatJUnit, fragments)
}

func (p *JUnitParser) parseCases(suite *models.TestSuiteResult, body string, offset int) {
	opens := junitCaseOpenRe.FindAllStringSubmatchIndex(body, -1)
	for i, m := range opens {
		caseAttrs := parseAttrs(body[m[2]:m[3]])
		selfClosing := body[m[4]:m[5]] == "/"

		if selfClosing {
			suite.Add(p.junitResult(suite.SuiteName, caseAttrs, models.StatusPassed, "", ""))
			continue
		}

		// The block must close before the next <testcase> opens.
		limit := len(body)
		if i+1 < len(opens) {
			limit = opens[i+1][0]
		}
		end := strings.Index(body[m[1]:limit], junitCaseClose)
		if end < 0 {
			p.malformed(offset+m[0], body[m[0]:min(limit, m[0]+120)])
			continue
		}

		caseBody := body[m[1] : m[1]+end]
		status, message, stack := junitCaseStatus(caseBody)
		result := p.junitResult(suite.SuiteName, caseAttrs, status, message, stack)
		applyJUnitProperties(&result, caseBody)
		suite.Add(result)
	}
}

// applyJUnitProperties reads <property> entries of a test case. targetSymbol
// names the exercised symbol; coverage.lines, coverage.branches,
// coverage.functions and coverage.statements carry per-test coverage.
func applyJUnitProperties(result *models.TestResult, body string) {
	var coverage models.CoverageMetrics
	hasCoverage := false

	for _, m := range junitPropertyRe.FindAllStringSubmatch(body, -1) {
		attrs := parseAttrs(m[1])
		name, value := attrs["name"], strings.TrimSpace(attrs["value"])
		if name == junitTargetSymbolProperty {
			result.TargetSymbol = value
			continue
		}

		metric, ok := strings.CutPrefix(name, junitCoveragePrefix)
		if !ok {
			continue
		}
		pct, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		switch metric {
		case "lines":
			coverage.Lines = pct
		case "branches":
			coverage.Branches = pct
		case "functions":
			coverage.Functions = pct
		case "statements":
			coverage.Statements = pct
		default:
			continue
		}
		hasCoverage = true
	}

	if hasCoverage {
		result.Coverage = &coverage
	}
}

// junitCaseStatus evaluates failure, then error, then skipped; each later
// match overrides the earlier one, so skipped > error > failure > passed.
func junitCaseStatus(body string) (models.TestStatus, string, string) {
	status := models.StatusPassed
	var message, stack string

	if m := junitFailureRe.FindStringSubmatch(body); m != nil {
		status = models.StatusFailed
		message, stack = junitMessage(m)
	}
	if m := junitErrorRe.FindStringSubmatch(body); m != nil {
		status = models.StatusError
		message, stack = junitMessage(m)
	}
	if junitSkippedRe.MatchString(body) {
		status = models.StatusSkipped
	}

	return status, message, stack
}

func junitMessage(m []string) (message, stack string) {
	attrs := parseAttrs(m[1])
	stack = strings.TrimSpace(junitText(m[2]))
	message = attrs["message"]
	if message == "" {
		message, _, _ = strings.Cut(stack, "\n")
	}
	return message, stack
}

func (p *JUnitParser) junitResult(suiteName string, attrs map[string]string, status models.TestStatus, message, stack string) models.TestResult {
	name := firstNonEmpty(attrs["name"], "unnamed")
	owner := firstNonEmpty(attrs["classname"], suiteName)
	seconds, _ := strconv.ParseFloat(attrs["time"], 64)

	return models.TestResult{
		TestID:       owner + "." + name,
		TestSuite:    suiteName,
		TestName:     name,
		Status:       status,
		DurationMS:   millis(seconds * 1000),
		ErrorMessage: message,
		StackTrace:   stack,
	}
}

func (p *JUnitParser) malformed(offset int, snippet string) {
	if p.OnMalformed != nil {
		p.OnMalformed(MalformedFragment{Format: FormatJUnit, Offset: offset, Snippet: snippet})
	}
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range junitAttrRe.FindAllStringSubmatch(s, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[m[1]] = html.UnescapeString(value)
	}
	return attrs
}

func junitText(s string) string {
	if m := junitCDATARe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return html.UnescapeString(s)
}
