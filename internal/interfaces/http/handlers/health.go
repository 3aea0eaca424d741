package handlers

import (
	"net/http"
	"time"

	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, httpContracts.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}
