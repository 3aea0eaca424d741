package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bazaarlab/flipscan/internal/flip"
	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

// PastHour handles GET /api/v1/past_hour/{item_id}: the derived history of
// one cached item. Cache lookup only; a miss is a 404.
func (h *Handlers) PastHour(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["item_id"]

	rec, ok := h.manager.GetRecommender(itemID)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "item_not_found", "Item not found")
		return
	}

	rows := rec.History().Rows()
	snapshots := make([]httpContracts.PastHourRow, len(rows))
	for i, row := range rows {
		snapshots[i] = httpContracts.PastHourRow{
			ItemID:          itemID,
			BuyOrderPrice:   flip.Finite(row.BuyOrderPrice),
			SellOrderPrice:  flip.Finite(row.SellOrderPrice),
			BuyOrderVolume:  flip.Finite(row.BuyOrderVolume),
			SellOrderVolume: flip.Finite(row.SellOrderVolume),
			InstaBuyVolume:  flip.Finite(row.InstaBuyVolume),
			InstaSellVolume: flip.Finite(row.InstaSellVolume),
			Margin:          flip.Finite(row.Margin),
			Timestamp:       row.Timestamp,
		}
	}

	h.writeJSON(w, http.StatusOK, httpContracts.PastHourResponse{Snapshots: snapshots})
}
