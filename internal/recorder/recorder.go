// Package recorder folds canonical suite results into persistent per-test
// state and serves the queries built on that state.
package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/analyzer"
	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// ErrTestRecordingFailed wraps every store failure during RecordTestResults.
var ErrTestRecordingFailed = errors.New("test recording failed")

var tracer = otel.Tracer("github.com/kamilpajak/testintel/internal/recorder")

// Observer is notified about ingestion outcomes.
type Observer interface {
	SuiteIngested(framework string)
	ResultRecorded(status models.TestStatus)
	FlakyTestsDetected(count int)
	RecordingFailed()
	RecordDuration(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) SuiteIngested(string) {}
func (nopObserver) ResultRecorded(models.TestStatus) {}
func (nopObserver) FlakyTestsDetected(int) {}
func (nopObserver) RecordingFailed() {}
func (nopObserver) RecordDuration(time.Duration) {}

// Recorder ingests suite results. It does not serialize concurrent calls;
// callers must not record suites sharing test ids concurrently.
type Recorder struct {
	graph    store.GraphStore
	suites   store.SuiteStore
	analyzer *analyzer.Analyzer
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithAnalyzer replaces the default-settings analyzer.
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(r *Recorder) { r.analyzer = a }
}

// WithObserver sets the ingestion observer.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

// WithClock sets the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates a Recorder writing to the given stores.
func New(graph store.GraphStore, suites store.SuiteStore, opts ...Option) *Recorder {
	r := &Recorder{
		graph:    graph,
		suites:   suites,
		analyzer: analyzer.New(analyzer.DefaultSettings()),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordTestResults persists a suite result and folds every result into its
// test entity, in suite order. A store failure stops the remaining steps and
// is returned wrapped in ErrTestRecordingFailed; earlier writes stay.
func (r *Recorder) RecordTestResults(ctx context.Context, suite *models.TestSuiteResult) error {
	_, err := r.Record(ctx, suite)
	return err
}

// Record is RecordTestResults returning the flaky test analyses it stored.
func (r *Recorder) Record(ctx context.Context, suite *models.TestSuiteResult) ([]models.FlakyTestAnalysis, error) {
	if suite == nil {
		return nil, fmt.Errorf("%w: suite is nil", ErrTestRecordingFailed)
	}

	ctx, span := tracer.Start(ctx, "recorder.RecordTestResults",
		trace.WithAttributes(
			attribute.String("testintel.suite", suite.SuiteName),
			attribute.String("testintel.framework", suite.Framework),
			attribute.Int("testintel.results", len(suite.Results)),
		),
	)
	defer span.End()

	start := r.now()
	analyses, err := r.record(ctx, suite)
	r.observer.RecordDuration(r.now().Sub(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.observer.RecordingFailed()
		r.logger.Error("recording failed",
			zap.String("suite", suite.SuiteName),
			zap.String("framework", suite.Framework),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("testintel.flaky_tests", len(analyses)))
	r.observer.SuiteIngested(suite.Framework)
	r.logger.Info("suite recorded",
		zap.String("suite", suite.SuiteName),
		zap.String("framework", suite.Framework),
		zap.Int("results", len(suite.Results)),
		zap.Int("failed", suite.FailedTests),
		zap.Int("flaky", len(analyses)),
	)
	return analyses, nil
}

func (r *Recorder) record(ctx context.Context, suite *models.TestSuiteResult) ([]models.FlakyTestAnalysis, error) {
	if err := r.suites.StoreTestSuiteResult(ctx, suite); err != nil {
		return nil, fmt.Errorf("%w: failed to store suite result: %w", ErrTestRecordingFailed, err)
	}

	ingestedAt := r.now().UTC()
	runAt := suite.Timestamp
	if runAt.IsZero() {
		runAt = ingestedAt
	}

	var order []string
	touched := make(map[string]*models.Test)

	for _, result := range suite.Results {
		test, err := r.recordResult(ctx, suite, result, runAt, ingestedAt)
		if err != nil {
			return nil, err
		}
		if _, seen := touched[test.ID]; !seen {
			order = append(order, test.ID)
		}
		touched[test.ID] = test
		r.observer.ResultRecorded(result.Status)
	}

	for _, id := range order {
		test := touched[id]
		test.FlakyScore = r.analyzer.CumulativeFlakyScore(test.ExecutionHistory)
		if err := r.graph.CreateOrUpdateEntity(ctx, test); err != nil {
			return nil, fmt.Errorf("%w: failed to update flaky score of %s: %w", ErrTestRecordingFailed, id, err)
		}
	}

	analyses := r.analyzer.AnalyzeFlakyTests(suite.Results)
	if err := r.suites.StoreFlakyTestAnalyses(ctx, analyses); err != nil {
		return nil, fmt.Errorf("%w: failed to store flaky test analyses: %w", ErrTestRecordingFailed, err)
	}
	r.observer.FlakyTestsDetected(len(analyses))
	for _, a := range analyses {
		r.logger.Warn("flaky test detected",
			zap.String("test_id", a.TestID),
			zap.Float64("flaky_score", a.FlakyScore),
		)
	}

	return analyses, nil
}

func (r *Recorder) recordResult(ctx context.Context, suite *models.TestSuiteResult, result models.TestResult, runAt, ingestedAt time.Time) (*models.Test, error) {
	test, err := r.loadTest(ctx, result.TestID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load test %s: %w", ErrTestRecordingFailed, result.TestID, err)
	}
	if test == nil {
		test = newTest(result, suite.Framework, ingestedAt)
		r.logger.Debug("creating test entity", zap.String("test_id", test.ID))
	}

	execution := models.TestExecution{
		ID:           executionID(test, ingestedAt),
		Timestamp:    runAt,
		Status:       result.Status,
		DurationMS:   result.DurationMS,
		ErrorMessage: result.ErrorMessage,
		StackTrace:   result.StackTrace,
		Coverage:     result.Coverage,
		Performance:  result.Performance,
		Environment: models.ExecutionEnvironment{
			Framework: suite.Framework,
			Timestamp: runAt.Format(time.RFC3339),
		},
	}
	test.ExecutionHistory = append(test.ExecutionHistory, execution)
	test.Status = result.Status
	test.LastRunAt = runAt
	test.LastDuration = result.DurationMS
	if result.TargetSymbol != "" {
		test.TargetSymbol = result.TargetSymbol
	}
	if result.Coverage != nil {
		test.Coverage = *result.Coverage
	}

	test.PerformanceMetrics = r.analyzer.UpdatePerformanceMetrics(test.PerformanceMetrics, test.ExecutionHistory, models.PerformanceDataPoint{
		Timestamp:          runAt,
		ExecutionTime:      result.DurationMS,
		CoveragePercentage: test.Coverage.Lines,
	})

	if result.Coverage != nil && test.TargetSymbol != "" {
		rel := models.Relationship{
			ID:           models.CoverageRelationshipID(test.ID, test.TargetSymbol),
			FromEntityID: test.ID,
			ToEntityID:   test.TargetSymbol,
			Type:         models.RelationshipCoverageProvides,
			Metadata:     map[string]any{"coveragePercentage": result.Coverage.Lines},
			CreatedAt:    ingestedAt,
		}
		if err := r.graph.CreateRelationship(ctx, rel); err != nil {
			return nil, fmt.Errorf("%w: failed to create coverage relationship %s: %w", ErrTestRecordingFailed, rel.ID, err)
		}
	}

	test.UpdatedAt = ingestedAt
	if err := r.graph.CreateOrUpdateEntity(ctx, test); err != nil {
		return nil, fmt.Errorf("%w: failed to persist test %s: %w", ErrTestRecordingFailed, test.ID, err)
	}
	return test, nil
}

// loadTest returns nil, nil when the id is unknown or belongs to an entity
// that is not a test.
func (r *Recorder) loadTest(ctx context.Context, id string) (*models.Test, error) {
	entity, err := r.graph.GetEntity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.EntityType() != models.EntityTypeTest {
		return nil, nil
	}
	test, ok := entity.(*models.Test)
	if !ok {
		return nil, nil
	}
	return test, nil
}

func newTest(result models.TestResult, framework string, now time.Time) *models.Test {
	testType := classify(framework, result.TestSuite, result.TestName)
	sum := sha256.Sum256([]byte(result.TestSuite + "::" + result.TestName))

	return &models.Test{
		ID:               result.TestID,
		Type:             models.EntityTypeTest,
		Path:             result.TestSuite,
		Hash:             hex.EncodeToString(sum[:]),
		Language:         language(framework),
		TestType:         testType,
		Framework:        framework,
		TargetSymbol:     result.TargetSymbol,
		ExecutionHistory: make([]models.TestExecution, 0),
		PerformanceMetrics: models.TestPerformanceMetrics{
			Trend:          models.TrendStable,
			HistoricalData: make([]models.PerformanceDataPoint, 0),
		},
		Tags:      []string{framework, string(testType)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func language(framework string) string {
	if framework == "junit" {
		return "java"
	}
	return "typescript"
}

func classify(framework, suite, name string) models.TestType {
	switch framework {
	case "cypress", "playwright":
		return models.TestTypeE2E
	}
	if strings.Contains(strings.ToLower(suite), "integration") || strings.Contains(strings.ToLower(name), "integration") {
		return models.TestTypeIntegration
	}
	return models.TestTypeUnit
}

// executionID is testId_<unix millis>, suffixed when a retry in the same
// millisecond would reuse an id.
func executionID(test *models.Test, at time.Time) string {
	id := fmt.Sprintf("%s_%d", test.ID, at.UnixMilli())
	taken := func(candidate string) bool {
		for i := len(test.ExecutionHistory) - 1; i >= 0; i-- {
			if test.ExecutionHistory[i].ID == candidate {
				return true
			}
		}
		return false
	}
	if !taken(id) {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", id, n)
		if !taken(candidate) {
			return candidate
		}
	}
}
