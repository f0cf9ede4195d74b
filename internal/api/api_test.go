package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/internal/metrics"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

const junitReport = `<testsuite name="calc">
  <testcase classname="calc" name="adds" time="0.01"/>
  <testcase classname="calc" name="adds" time="0.01"><failure message="boom"/></testcase>
  <testcase classname="calc" name="adds" time="0.01"/>
  <testcase classname="calc" name="subtracts" time="0.02"/>
</testsuite>`

type fixture struct {
	server   *Server
	store    *store.Memory
	recorder *recorder.Recorder
	metrics  *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	collector := metrics.NewCollector()
	logger := zaptest.NewLogger(t)
	rec := recorder.New(mem, mem, recorder.WithLogger(logger), recorder.WithObserver(collector))

	return &fixture{
		server: NewServer(Config{
			Ingest:   ingest.New(rec, logger),
			Recorder: rec,
			History:  mem,
			Metrics:  collector,
			Logger:   logger,
		}),
		store:    mem,
		recorder: rec,
		metrics:  collector,
	}
}

func (f *fixture) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	t.Run("OPTIONS request returns 200", func(t *testing.T) {
		rec := f.do(t, http.MethodOptions, "/api/ingest", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("CORS headers on regular request", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/health", nil)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestIngest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ingest?filename=results.xml", []byte(junitReport))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	summary := decode[ingest.Summary](t, rec)
	assert.Equal(t, "calc", summary.SuiteName)
	assert.Equal(t, "junit", summary.Framework)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.FlakyTests, 1)
	assert.Equal(t, "calc.adds", summary.FlakyTests[0].TestID)

	assert.Len(t, f.store.Suites(), 1)
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		body    string
		status  int
		message string
	}{
		{"empty body", "/api/ingest", "", http.StatusBadRequest, "empty content"},
		{"undetectable", "/api/ingest", `{"nothing": 1}`, http.StatusBadRequest, "unable to detect"},
		{"unsupported format", "/api/ingest?format=nunit", junitReport, http.StatusBadRequest, "unsupported format"},
		{"invalid json", "/api/ingest?format=jest", "{", http.StatusBadRequest, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, tt.target, []byte(tt.body))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["error"], tt.message)
			assert.Empty(t, f.store.Suites())
		})
	}
}

func TestIngest_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.server.maxReportBytes = 16

	rec := f.do(t, http.MethodPost, "/api/ingest", []byte(junitReport))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type failingSuites struct {
	*store.Memory
}

func (failingSuites) StoreTestSuiteResult(context.Context, *models.TestSuiteResult) error {
	return errors.New("disk full")
}

func TestIngest_RecordingFailure(t *testing.T) {
	mem := store.NewMemory()
	logger := zaptest.NewLogger(t)
	rec := recorder.New(mem, failingSuites{mem}, recorder.WithLogger(logger))
	server := NewServer(Config{Ingest: ingest.New(rec, logger), Recorder: rec, Logger: logger})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(junitReport))
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "failed to record test results")
}

func TestTestQueries(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/ingest", []byte(junitReport)).Code)

	t.Run("get test", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tests/calc.adds", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		test := decode[models.Test](t, rec)
		assert.Equal(t, "calc.adds", test.ID)
		assert.Len(t, test.ExecutionHistory, 3)
		assert.Equal(t, models.StatusPassed, test.Status)
	})

	t.Run("performance", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tests/calc.subtracts/performance", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		perf := decode[models.TestPerformanceMetrics](t, rec)
		assert.Equal(t, 1.0, perf.SuccessRate)
		assert.Equal(t, models.TrendStable, perf.Trend)
	})

	t.Run("flakiness", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tests/calc.adds/flakiness", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		analysis := decode[models.FlakyTestAnalysis](t, rec)
		assert.Equal(t, 3, analysis.TotalRuns)
		assert.Equal(t, 1, analysis.FailedRuns)
		assert.Greater(t, analysis.FlakyScore, 0.3)
	})

	t.Run("stored analyses", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tests/calc.adds/analyses?limit=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			TestID   string                     `json:"testId"`
			Analyses []models.FlakyTestAnalysis `json:"analyses"`
			Limit    int                        `json:"limit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "calc.adds", resp.TestID)
		assert.Equal(t, 5, resp.Limit)
		assert.Len(t, resp.Analyses, 1)
	})

	t.Run("missing test", func(t *testing.T) {
		for _, path := range []string{"/api/tests/nope", "/api/tests/nope/performance", "/api/tests/nope/flakiness"} {
			rec := f.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code, path)
		}
	})
}

func TestGetTest_EscapedID(t *testing.T) {
	f := newFixture(t)
	report := `{"testResults": [{"name": "src/math.test.ts", "testResults": [
		{"title": "adds", "ancestorTitles": ["math"], "status": "passed", "duration": 3}
	]}]}`
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/ingest?format=jest", []byte(report)).Code)

	rec := f.do(t, http.MethodGet, "/api/tests/"+url.PathEscape("src/math.test.ts#math adds"), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jest", decode[models.Test](t, rec).Framework)
}

func TestGetCoverage(t *testing.T) {
	f := newFixture(t)
	suite := &models.TestSuiteResult{
		SuiteName: "calc",
		Framework: "jest",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Results: []models.TestResult{
			{TestID: "u1", TestName: "u1", Status: models.StatusPassed, TargetSymbol: "sym:Add", Coverage: &models.CoverageMetrics{Lines: 80}},
			{TestID: "u2", TestName: "u2", Status: models.StatusPassed, TargetSymbol: "sym:Add", Coverage: &models.CoverageMetrics{Lines: 40}},
		},
	}
	require.NoError(t, f.recorder.RecordTestResults(context.Background(), suite))

	rec := f.do(t, http.MethodGet, "/api/symbols/sym:Add/coverage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	analysis := decode[models.CoverageAnalysis](t, rec)
	assert.Equal(t, "sym:Add", analysis.EntityID)
	assert.Equal(t, 60.0, analysis.OverallCoverage.Lines)
	assert.ElementsMatch(t, []string{"u1", "u2"}, analysis.TestIDs)

	t.Run("uncovered symbol", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/symbols/sym:Other/coverage", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[models.CoverageAnalysis](t, rec).TestIDs)
	})
}

func TestIngestThenGetCoverage(t *testing.T) {
	f := newFixture(t)
	report := `{
  "suiteName": "calc",
  "framework": "jest",
  "results": [
    {"testId": "u1", "status": "passed", "duration": 4, "targetSymbol": "sym:Add", "coverage": {"lines": 90}},
    {"testId": "u2", "status": "error", "duration": 6, "targetSymbol": "sym:Add", "coverage": {"lines": 30}}
  ]
}`

	rec := f.do(t, http.MethodPost, "/api/ingest?format=canonical", []byte(report))
	require.Equal(t, http.StatusCreated, rec.Code)
	summary := decode[ingest.Summary](t, rec)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "u2", summary.Failures[0].TestID)

	rec = f.do(t, http.MethodGet, "/api/symbols/sym:Add/coverage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	analysis := decode[models.CoverageAnalysis](t, rec)
	assert.Equal(t, 60.0, analysis.OverallCoverage.Lines)
	assert.ElementsMatch(t, []string{"u1", "u2"}, analysis.TestIDs)

	t.Run("invalid status is rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/ingest?format=canonical", []byte(`{"results": [{"testId": "x", "status": "flaky"}]}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[map[string]string](t, rec)["error"], `invalid test status "flaky"`)
	})
}

func TestListAnalyses_NoHistory(t *testing.T) {
	mem := store.NewMemory()
	rec := recorder.New(mem, mem)
	server := NewServer(Config{Ingest: ingest.New(rec, nil), Recorder: rec})

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/tests/a/analyses", nil))

	assert.Equal(t, http.StatusNotImplemented, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/ingest", []byte(junitReport)).Code)

	rec := f.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `testintel_suites_ingested_total{framework="junit"} 1`)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultLimit},
		{"limit=10", 10},
		{"limit=0", defaultLimit},
		{"limit=-3", defaultLimit},
		{"limit=abc", defaultLimit},
		{"limit=501", defaultLimit},
		{"limit=500", 500},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			assert.Equal(t, tt.want, parseLimit(req))
		})
	}
}
