package flip

import (
	"math"
	"sort"

	"github.com/bazaarlab/flipscan/internal/bazaar"
)

// baseOutBid is the minimum increment the exchange lets a trader add to jump
// the queue. Out-bid deltas are expressed as multiples of it.
const baseOutBid = 0.1

// BookRow is one processed order-book level.
type BookRow struct {
	PricePerUnit float64
	Amount       float64
	Orders       int
	OutBid       float64 // delta to the previous level; NaN on the first row
}

// Book is one side of an item's order book, sorted ascending by price with
// consecutive-price deltas attached.
type Book struct {
	rows []BookRow
}

// BuildBook sorts the raw side by price and computes the out-bid deltas.
func BuildBook(entries []bazaar.OrderEntry) Book {
	if len(entries) == 0 {
		return Book{}
	}

	sorted := make([]bazaar.OrderEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PricePerUnit < sorted[j].PricePerUnit
	})

	rows := make([]BookRow, len(sorted))
	for i, e := range sorted {
		rows[i] = BookRow{
			PricePerUnit: e.PricePerUnit,
			Amount:       e.Amount,
			Orders:       e.Orders,
			OutBid:       math.NaN(),
		}
		if i > 0 {
			rows[i].OutBid = e.PricePerUnit - sorted[i-1].PricePerUnit
		}
	}
	return Book{rows: rows}
}

// Len returns the number of levels.
func (b Book) Len() int { return len(b.rows) }

// Rows returns a copy of the processed levels.
func (b Book) Rows() []BookRow {
	out := make([]BookRow, len(b.rows))
	copy(out, b.rows)
	return out
}

// outBidFactor measures how aggressively this side out-bids: the mean of the
// top 20% largest deltas (at least one level) over the base out-bid unit.
// A book with no usable deltas yields NaN.
func outBidFactor(b Book) float64 {
	deltas := make([]float64, 0, len(b.rows))
	for _, r := range b.rows {
		if !math.IsNaN(r.OutBid) {
			deltas = append(deltas, r.OutBid)
		}
	}
	if len(deltas) == 0 {
		return math.NaN()
	}

	top := int(float64(len(b.rows)) * 0.2)
	if top == 0 {
		top = 1
	}
	if top > len(deltas) {
		top = len(deltas)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(deltas)))

	var sum float64
	for _, d := range deltas[:top] {
		sum += d
	}
	return sum / float64(top) / baseOutBid
}
