// Package api provides the HTTP ingestion and query server.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/internal/metrics"
	"github.com/kamilpajak/testintel/internal/recorder"
	"github.com/kamilpajak/testintel/internal/store"
)

// DefaultMaxReportBytes bounds the size of an ingested report body.
const DefaultMaxReportBytes = 32 << 20

// Server is the API server.
type Server struct {
	ingest         *ingest.Service
	recorder       *recorder.Recorder
	history        store.AnalysisHistory
	metrics        *metrics.Collector
	logger         *zap.Logger
	maxReportBytes int64
	mux            *http.ServeMux
}

// Config holds API server configuration.
type Config struct {
	Ingest   *ingest.Service
	Recorder *recorder.Recorder
	// History is optional; without it the analyses route answers 501.
	History store.AnalysisHistory
	// Metrics is optional; without it /metrics is not served.
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	MaxReportBytes int64
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		ingest:         cfg.Ingest,
		recorder:       cfg.Recorder,
		history:        cfg.History,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		maxReportBytes: cfg.MaxReportBytes,
		mux:            http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxReportBytes <= 0 {
		s.maxReportBytes = DefaultMaxReportBytes
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/ingest", s.handleIngest)

	s.mux.HandleFunc("GET /api/tests/{testID}", s.handleGetTest)
	s.mux.HandleFunc("GET /api/tests/{testID}/performance", s.handleGetPerformance)
	s.mux.HandleFunc("GET /api/tests/{testID}/flakiness", s.handleGetFlakiness)
	s.mux.HandleFunc("GET /api/tests/{testID}/analyses", s.handleListAnalyses)
	s.mux.HandleFunc("GET /api/symbols/{symbolID}/coverage", s.handleGetCoverage)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
