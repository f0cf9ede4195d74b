package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/parser"
	"github.com/kamilpajak/testintel/internal/recorder"
)

// handleIngest parses the request body as a report and records it. The
// format and filename query parameters are optional hints.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxReportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read report")
		return
	}

	query := r.URL.Query()
	filename := query.Get("filename")
	format := parser.Format(query.Get("format"))

	suite, err := s.ingest.Parse(filename, body, format)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to parse report")
		return
	}

	summary, err := s.ingest.Record(r.Context(), filename, suite)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("suite", suite.SuiteName), zap.Error(err))
		if errors.Is(err, recorder.ErrTestRecordingFailed) {
			writeError(w, http.StatusInternalServerError, "failed to record test results")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}
