package http

import (
	"time"

	"github.com/bazaarlab/flipscan/internal/engine"
)

// ContextKey types the context keys the server middleware sets.
type ContextKey string

// RequestIDKey is the context key the request identifier is stored under.
const RequestIDKey ContextKey = "request_id"

// TopFlipsResponse is the ranked-opportunity payload. Degenerate scalars are
// serialized as null, never as NaN or Inf.
type TopFlipsResponse struct {
	Flips []engine.Summary `json:"flips"`
	Count int              `json:"count"`
}

// PastHourRow is one derived history sample for the per-item endpoint.
type PastHourRow struct {
	ItemID          string    `json:"item_id"`
	BuyOrderPrice   *float64  `json:"buy_order_price"`
	SellOrderPrice  *float64  `json:"sell_order_price"`
	BuyOrderVolume  *float64  `json:"buy_order_volume"`
	SellOrderVolume *float64  `json:"sell_order_volume"`
	InstaBuyVolume  *float64  `json:"insta_buy_volume"`
	InstaSellVolume *float64  `json:"insta_sell_volume"`
	Margin          *float64  `json:"margin"`
	Timestamp       time.Time `json:"timestamp"`
}

// PastHourResponse carries the full derived history of one item.
type PastHourResponse struct {
	Snapshots []PastHourRow `json:"snapshots"`
}

// ItemsResponse lists every tracked item tag.
type ItemsResponse struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
