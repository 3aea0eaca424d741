package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bazaarlab/flipscan/internal/engine"
	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

// Handlers serves the read boundary over the engine manager. All lookups hit
// the caches; an absent entry is a 404, never a propagated internal error.
type Handlers struct {
	manager *engine.Manager
}

// NewHandlers wires the endpoint handlers to a manager.
func NewHandlers(manager *engine.Manager) *Handlers {
	return &Handlers{manager: manager}
}

// writeJSON writes a JSON response. An encoding failure can only be logged:
// the status line and headers are already on the wire.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Response encoding failed")
	}
}

// writeError writes the standard error envelope.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(httpContracts.RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.writeJSON(w, status, httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
