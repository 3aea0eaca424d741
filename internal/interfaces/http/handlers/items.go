package handlers

import (
	"net/http"

	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

// Items handles GET /api/v1/items: the full tracked-item tag list, served
// from its long-lived singleton cache.
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.AllItems(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "items_unavailable",
			"The item list could not be refreshed")
		return
	}

	h.writeJSON(w, http.StatusOK, httpContracts.ItemsResponse{
		Items: items,
		Count: len(items),
	})
}
