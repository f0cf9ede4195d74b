package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kamilpajak/testintel/internal/store"
)

const (
	defaultLimit = store.DefaultAnalysisLimit
	maxLimit     = 500
)

// parseLimit extracts the limit query parameter, falling back to the default
// for missing, malformed or out-of-range values.
func parseLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// writeLookupError maps store.ErrNotFound to 404 and everything else to 500.
func writeLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	writeError(w, http.StatusInternalServerError, "database error")
}
