package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ygoldman/classdesk/internal/importer"
)

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// writeError writes a plain JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeBatchError maps a batch-aborting import error to 422, carrying the
// machine code and the remediation details (valid columns, available tags,
// the row limit) so the caller can correct the batch in one round trip.
func writeBatchError(w http.ResponseWriter, berr *importer.BatchError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": berr})
}
