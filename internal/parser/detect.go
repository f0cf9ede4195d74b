package parser

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// DetectFormat guesses the report format from its content, falling back to
// hints in the file name. An undetectable report is a *ParseError.
func DetectFormat(filename, content string) (Format, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", parseError(FormatAuto, "empty content", nil)
	}

	if strings.HasPrefix(trimmed, "<") {
		return FormatJUnit, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &generic); err == nil {
		if format := detectJSON(generic); format != "" {
			return format, nil
		}
	}

	if format := guessFormatFromName(filename); format != "" {
		return format, nil
	}

	return "", parseError(FormatAuto, "unable to detect report format", nil)
}

func detectJSON(generic map[string]json.RawMessage) Format {
	has := func(key string) bool {
		_, ok := generic[key]
		return ok
	}

	// Cypress module API output: runs[] with a spec per run
	if runs, ok := generic["runs"]; ok && strings.Contains(string(runs), `"spec"`) {
		return FormatCypress
	}

	// Playwright JSON reporter always writes its resolved config
	if has("suites") && has("config") {
		return FormatPlaywright
	}

	// Already normalized: suiteName alongside results, no framework stats
	if has("suiteName") && has("results") && !has("stats") {
		return FormatCanonical
	}

	// mochawesome nests suites under results; the plain JSON reporter is flat
	if has("stats") && (has("results") || has("tests")) {
		return FormatMocha
	}
	if has("suites") && has("tests") {
		return FormatMocha
	}

	if has("testResults") {
		return FormatJest
	}

	return ""
}

// guessFormatFromName maps conventional report file names to a format.
func guessFormatFromName(name string) Format {
	base := strings.ToLower(filepath.Base(name))
	if base == "." || base == "" {
		return ""
	}
	if strings.HasSuffix(base, ".xml") || strings.Contains(base, "junit") {
		return FormatJUnit
	}
	for _, f := range []Format{FormatPlaywright, FormatCypress, FormatVitest, FormatMocha, FormatJest} {
		if strings.Contains(base, string(f)) {
			return f
		}
	}
	return ""
}
