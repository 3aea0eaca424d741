package bazaar

import "time"

// OrderEntry is one price level of an order book side.
type OrderEntry struct {
	PricePerUnit float64 `json:"pricePerUnit"`
	Amount       float64 `json:"amount"`
	Orders       int     `json:"orders"`
}

// QuickStatus carries the per-item summary fields used by the eligibility filter.
type QuickStatus struct {
	SellPrice      float64 `json:"sellPrice"`
	SellVolume     float64 `json:"sellVolume"`
	SellMovingWeek float64 `json:"sellMovingWeek"`
	BuyPrice       float64 `json:"buyPrice"`
	BuyVolume      float64 `json:"buyVolume"`
	BuyMovingWeek  float64 `json:"buyMovingWeek"`
}

// OrderBook holds both sides of one item's book. The buy side is built from
// the upstream sell summary and vice versa: upstream labels are inverted
// relative to the trader's perspective.
type OrderBook struct {
	Buy  []OrderEntry
	Sell []OrderEntry
}

// OrderBookSet maps item identifiers to their order books for one market
// snapshot. Rebuilt each snapshot cycle.
type OrderBookSet map[string]OrderBook

// HistoryRow is one hourly history sample for a single item. Optional fields
// stay nil when the upstream omits them; the derived history forward-fills
// those gaps.
type HistoryRow struct {
	Timestamp      time.Time `json:"timestamp"`
	Buy            *float64  `json:"buy"`
	Sell           *float64  `json:"sell"`
	BuyVolume      *float64  `json:"buyVolume"`
	SellVolume     *float64  `json:"sellVolume"`
	BuyMovingWeek  *float64  `json:"buyMovingWeek"`
	SellMovingWeek *float64  `json:"sellMovingWeek"`
}

type product struct {
	QuickStatus QuickStatus  `json:"quick_status"`
	SellSummary []OrderEntry `json:"sell_summary"`
	BuySummary  []OrderEntry `json:"buy_summary"`
}

type snapshotResponse struct {
	Success  bool               `json:"success"`
	Products map[string]product `json:"products"`
}

// Thresholds is the liquidity/margin filter applied to a market snapshot to
// decide which items are worth tracking this cycle.
type Thresholds struct {
	MinSellPrice      float64
	MinBuyPrice       float64
	MinSpread         float64
	MinBuyMovingWeek  float64
	MinSellMovingWeek float64
}

// DefaultThresholds returns the stock eligibility filter.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSellPrice:      1000,
		MinBuyPrice:       1000,
		MinSpread:         10000,
		MinBuyMovingWeek:  200,
		MinSellMovingWeek: 200,
	}
}

// Eligible reports whether an item's quick status passes the filter.
func (t Thresholds) Eligible(qs QuickStatus) bool {
	return qs.SellPrice >= t.MinSellPrice &&
		qs.BuyPrice >= t.MinBuyPrice &&
		qs.BuyPrice-qs.SellPrice >= t.MinSpread &&
		qs.BuyMovingWeek >= t.MinBuyMovingWeek &&
		qs.SellMovingWeek >= t.MinSellMovingWeek
}
