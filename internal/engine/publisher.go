package engine

import (
	"context"
	"time"

	"github.com/bazaarlab/flipscan/internal/flip"
)

// Publisher receives the ranked flip summaries after each successful refresh
// cycle. Implementations must tolerate being called repeatedly with
// overlapping data; the in-memory caches stay authoritative.
type Publisher interface {
	Publish(ctx context.Context, flips []Summary) error
}

// Summary is the exported per-item shape handed to publishers. Degenerate
// scalars (NaN, infinite) are already filtered to nil.
type Summary struct {
	ItemID string `json:"item_id"`

	ProfitPerHour   *float64 `json:"profit_per_hour"`
	Competitiveness *float64 `json:"competitiveness"`
	ProfitHalfLife  *float64 `json:"profit_half_life"`
	MinutesPerFlip  *float64 `json:"minutes_per_flip"`

	BuyOrderPrice   *float64  `json:"buy_order_price"`
	SellOrderPrice  *float64  `json:"sell_order_price"`
	BuyOrderVolume  *float64  `json:"buy_order_volume"`
	SellOrderVolume *float64  `json:"sell_order_volume"`
	InstaBuyVolume  *float64  `json:"insta_buy_volume"`
	InstaSellVolume *float64  `json:"insta_sell_volume"`
	Margin          *float64  `json:"margin"`
	Timestamp       time.Time `json:"timestamp"`
}

// Summarize flattens a recommender into the publishable shape.
func Summarize(r *flip.Recommender) Summary {
	return Summary{
		ItemID:          r.ItemID(),
		ProfitPerHour:   flip.Finite(r.ProfitPerHour()),
		Competitiveness: flip.Finite(r.Competitiveness()),
		ProfitHalfLife:  flip.Finite(r.ProfitHalfLife()),
		MinutesPerFlip:  flip.Finite(r.MinutesPerFlip()),
		BuyOrderPrice:   flip.Finite(r.BuyOrderPrice()),
		SellOrderPrice:  flip.Finite(r.SellOrderPrice()),
		BuyOrderVolume:  flip.Finite(r.BuyOrderVolume()),
		SellOrderVolume: flip.Finite(r.SellOrderVolume()),
		InstaBuyVolume:  flip.Finite(r.InstaBuyVolume()),
		InstaSellVolume: flip.Finite(r.InstaSellVolume()),
		Margin:          flip.Finite(r.Margin()),
		Timestamp:       r.Timestamp(),
	}
}

// publish hands the current ranked list to the configured publisher.
func (m *Manager) publish(ctx context.Context) error {
	recs, err := m.TopFlips(ctx, 0)
	if err != nil {
		return err
	}

	flips := make([]Summary, len(recs))
	for i, r := range recs {
		flips[i] = Summarize(r)
	}
	return m.publisher.Publish(ctx, flips)
}
