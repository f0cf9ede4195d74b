package parser

import "fmt"

// ParseError is returned when a report cannot be turned into a suite result.
// It aborts the whole file; no partial result is returned alongside it.
type ParseError struct {
	Format Format
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("failed to parse %s report: %s", e.Format, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(format Format, reason string, err error) *ParseError {
	return &ParseError{Format: format, Reason: reason, Err: err}
}

// MalformedFragment describes a report fragment that was skipped because it
// could not be read, e.g. an unterminated <testcase> block.
type MalformedFragment struct {
	Format  Format
	Offset  int
	Snippet string
}

func (m MalformedFragment) String() string {
	return fmt.Sprintf("malformed %s fragment at offset %d: %q", m.Format, m.Offset, m.Snippet)
}
