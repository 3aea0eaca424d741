package handlers

import (
	"net/http"
	"strconv"

	"github.com/bazaarlab/flipscan/internal/engine"
	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

const (
	defaultTopFlips = 20
	maxTopFlips     = 100
)

// TopFlips handles GET /api/v1/top_flips?top=N: the cached recommenders for
// currently eligible items, best profit per hour first.
func (h *Handlers) TopFlips(w http.ResponseWriter, r *http.Request) {
	top := defaultTopFlips
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopFlips {
			h.writeError(w, r, http.StatusBadRequest, "invalid_top",
				"top must be an integer between 1 and 100")
			return
		}
		top = n
	}

	recs, err := h.manager.TopFlips(r.Context(), top)
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "eligible_items_unavailable",
			"The eligible-items list could not be refreshed")
		return
	}

	flips := make([]engine.Summary, len(recs))
	for i, rec := range recs {
		flips[i] = engine.Summarize(rec)
	}

	h.writeJSON(w, http.StatusOK, httpContracts.TopFlipsResponse{
		Flips: flips,
		Count: len(flips),
	})
}
