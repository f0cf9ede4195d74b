// Package ingest turns raw report files into recorded suite results.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/parser"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/pkg/models"
)

// Summary describes one recorded suite.
type Summary struct {
	Source     string                     `json:"source,omitempty"`
	SuiteName  string                     `json:"suiteName"`
	Framework  string                     `json:"framework"`
	Total      int                        `json:"totalTests"`
	Passed     int                        `json:"passedTests"`
	Failed     int                        `json:"failedTests"`
	Skipped    int                        `json:"skippedTests"`
	DurationMS int64                      `json:"duration"`
	FlakyTests []models.FlakyTestAnalysis `json:"flakyTests"`
	Failures   []Failure                  `json:"failures,omitempty"`
}

// Failure is one failed or errored result of a recorded suite.
type Failure struct {
	TestID       string            `json:"testId"`
	Status       models.TestStatus `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// Service parses reports and hands them to the recorder. Record calls are
// serialized so that suites sharing test ids never interleave.
type Service struct {
	parsers  *parser.Registry
	recorder *recorder.Recorder
	logger   *zap.Logger
	mu       sync.Mutex
}

// New creates an ingestion service. Malformed report fragments are logged as
// warnings.
func New(rec *recorder.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		parsers: parser.NewRegistry(parser.Options{
			OnMalformed: func(m parser.MalformedFragment) {
				logger.Warn("skipped malformed report fragment",
					zap.String("format", string(m.Format)),
					zap.Int("offset", m.Offset),
					zap.String("snippet", m.Snippet),
				)
			},
		}),
		recorder: rec,
		logger:   logger,
	}
}

// Parse converts one report. An empty or "auto" format is detected from the
// content first and the file name second.
func (s *Service) Parse(filename string, content []byte, format parser.Format) (*models.TestSuiteResult, error) {
	text := string(content)
	if format == "" || strings.EqualFold(string(format), string(parser.FormatAuto)) {
		detected, err := parser.DetectFormat(filename, text)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	return s.parsers.Parse(text, format)
}

// Record persists a parsed suite and summarizes it. The flaky tests listed
// are the batch analyses stored for this suite.
func (s *Service) Record(ctx context.Context, source string, suite *models.TestSuiteResult) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	analyses, err := s.recorder.Record(ctx, suite)
	if err != nil {
		return Summary{}, err
	}

	var failures []Failure
	for _, r := range suite.FailedResults() {
		failures = append(failures, Failure{TestID: r.TestID, Status: r.Status, ErrorMessage: r.ErrorMessage})
	}

	return Summary{
		Source:     source,
		SuiteName:  suite.SuiteName,
		Framework:  suite.Framework,
		Total:      suite.TotalTests,
		Passed:     suite.PassedTests,
		Failed:     suite.FailedTests,
		Skipped:    suite.SkippedTests,
		DurationMS: suite.DurationMS,
		FlakyTests: analyses,
		Failures:   failures,
	}, nil
}

// Ingest parses and records one report.
func (s *Service) Ingest(ctx context.Context, filename string, content []byte, format parser.Format) (Summary, error) {
	suite, err := s.Parse(filename, content, format)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse %s: %w", displayName(filename), err)
	}
	return s.Record(ctx, filename, suite)
}

func displayName(filename string) string {
	if filename == "" {
		return "report"
	}
	return filename
}
