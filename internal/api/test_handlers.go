package api

import (
	"net/http"
)

func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	test, err := s.recorder.GetTest(r.Context(), r.PathValue("testID"))
	if err != nil {
		writeLookupError(w, err, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.recorder.GetPerformanceMetrics(r.Context(), r.PathValue("testID"))
	if err != nil {
		writeLookupError(w, err, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// handleGetFlakiness scores the test's stored history on demand.
func (s *Server) handleGetFlakiness(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.recorder.AnalyzeTestFlakiness(r.Context(), r.PathValue("testID"))
	if err != nil {
		writeLookupError(w, err, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleListAnalyses returns the flakiness reports stored for a test by
// earlier ingestions, newest first.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "analysis history is not available")
		return
	}

	testID := r.PathValue("testID")
	limit := parseLimit(r)
	analyses, err := s.history.ListFlakyTestAnalyses(r.Context(), testID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"testId":   testID,
		"analyses": analyses,
		"limit":    limit,
	})
}

func (s *Server) handleGetCoverage(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.recorder.GetCoverageAnalysis(r.Context(), r.PathValue("symbolID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to analyze coverage")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
