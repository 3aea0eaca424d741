package flip

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/bazaarlab/flipscan/internal/bazaar"
)

// taxRate is the exchange cut deducted from every completed flip.
const taxRate = 0.01125

// ErrNotEnoughData marks an item whose raw history cannot support scoring.
var ErrNotEnoughData = errors.New("flip: not enough history data")

// Row is one derived history sample. Prices and volumes are named from the
// trader's perspective; the upstream buy/sell labels are inverted during the
// build. A missing value is NaN.
type Row struct {
	BuyOrderPrice       float64
	SellOrderPrice      float64
	BuyOrderVolume      float64
	SellOrderVolume     float64
	InstaBuyVolume      float64
	InstaSellVolume     float64
	InstaBuyVolumeWeek  float64
	InstaSellVolumeWeek float64
	Margin              float64
	Timestamp           time.Time
}

// History is a per-item derived table, ordered ascending by timestamp.
type History struct {
	rows []Row
}

// BuildHistory transforms raw hourly rows into the derived table: sort by
// timestamp, forward-fill gaps, remap the inverted upstream labels, derive
// margin and the interval instant volumes.
func BuildHistory(raw []bazaar.HistoryRow) (History, error) {
	if len(raw) == 0 {
		return History{}, ErrNotEnoughData
	}

	sorted := make([]bazaar.HistoryRow, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	nan := math.NaN()
	prevBuy, prevSell := nan, nan
	prevBuyVol, prevSellVol := nan, nan
	prevBuyWeek, prevSellWeek := nan, nan

	rows := make([]Row, len(sorted))
	for i, r := range sorted {
		prevBuy = fill(r.Buy, prevBuy)
		prevSell = fill(r.Sell, prevSell)
		prevBuyVol = fill(r.BuyVolume, prevBuyVol)
		prevSellVol = fill(r.SellVolume, prevSellVol)
		prevBuyWeek = fill(r.BuyMovingWeek, prevBuyWeek)
		prevSellWeek = fill(r.SellMovingWeek, prevSellWeek)

		row := Row{
			// Upstream "buy" is the price an instant buyer pays, which is the
			// trader's sell-order price, and vice versa.
			SellOrderPrice:      prevBuy,
			BuyOrderPrice:       prevSell,
			SellOrderVolume:     prevBuyVol,
			BuyOrderVolume:      prevSellVol,
			InstaBuyVolumeWeek:  prevBuyWeek,
			InstaSellVolumeWeek: prevSellWeek,
			Timestamp:           r.Timestamp,
		}
		row.Margin = (row.SellOrderPrice - row.BuyOrderPrice) * (1 - taxRate)

		if i == 0 {
			row.InstaBuyVolume = nan
			row.InstaSellVolume = nan
		} else {
			// Weekly counters occasionally step backwards upstream; keep the
			// magnitude of the interval change.
			row.InstaBuyVolume = math.Abs(row.InstaBuyVolumeWeek - rows[i-1].InstaBuyVolumeWeek)
			row.InstaSellVolume = math.Abs(row.InstaSellVolumeWeek - rows[i-1].InstaSellVolumeWeek)
		}

		rows[i] = row
	}

	return History{rows: rows}, nil
}

func fill(v *float64, prev float64) float64 {
	if v != nil {
		return *v
	}
	return prev
}

// Len returns the number of rows.
func (h History) Len() int { return len(h.rows) }

// Rows returns a copy of the table.
func (h History) Rows() []Row {
	out := make([]Row, len(h.rows))
	copy(out, h.rows)
	return out
}

// Last returns the most recent row. Valid only for non-empty histories, which
// construction guarantees.
func (h History) Last() Row { return h.rows[len(h.rows)-1] }

func (h History) margins() []float64 {
	out := make([]float64, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.Margin
	}
	return out
}

func (h History) instaBuyVolumes() []float64 {
	out := make([]float64, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.InstaBuyVolume
	}
	return out
}

func (h History) instaSellVolumes() []float64 {
	out := make([]float64, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.InstaSellVolume
	}
	return out
}

func (h History) instaBuyVolumesWeek() []float64 {
	out := make([]float64, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.InstaBuyVolumeWeek
	}
	return out
}

func (h History) instaSellVolumesWeek() []float64 {
	out := make([]float64, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.InstaSellVolumeWeek
	}
	return out
}

func (h History) timestamps() []time.Time {
	out := make([]time.Time, len(h.rows))
	for i, r := range h.rows {
		out[i] = r.Timestamp
	}
	return out
}
