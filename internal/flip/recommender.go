package flip

import (
	"math"
	"time"

	"github.com/bazaarlab/flipscan/internal/bazaar"
)

// competitivenessFactor scales competitiveness in the composite score.
const competitivenessFactor = 0.1

// Recommender scores one tracked item. It owns the derived history and both
// processed order-book sides; every derived scalar is computed eagerly at
// construction, so a Recommender is immutable and safe to share between the
// refresh loop and concurrent readers. Degenerate inputs surface as NaN or
// infinite scalars rather than errors; the read boundary filters those at
// serialization time.
type Recommender struct {
	itemID   string
	history  History
	buyBook  Book
	sellBook Book

	minutesPerFlip  float64
	profitPerHour   float64
	profitHalfLife  float64
	competitiveness float64
	score           float64
}

// NewRecommender builds the derived history and order books for one item and
// computes all scores. Fails with ErrNotEnoughData when the raw history is
// empty.
func NewRecommender(itemID string, raw []bazaar.HistoryRow, book bazaar.OrderBook) (*Recommender, error) {
	history, err := BuildHistory(raw)
	if err != nil {
		return nil, err
	}

	r := &Recommender{
		itemID:   itemID,
		history:  history,
		buyBook:  BuildBook(book.Buy),
		sellBook: BuildBook(book.Sell),
	}

	r.minutesPerFlip = r.computeMinutesPerFlip()
	r.profitPerHour = r.computeProfitPerHour()
	r.profitHalfLife = r.computeProfitHalfLife()
	r.competitiveness = r.computeCompetitiveness()
	r.score = r.profitPerHour / (r.competitiveness * competitivenessFactor)

	return r, nil
}

// computeMinutesPerFlip is the expected time for one full round trip: the
// wait for a buy order to fill plus the wait for the matching sell order,
// each derived from the instant volume summed over the window. Zero volume
// on either leg makes the flip take forever.
func (r *Recommender) computeMinutesPerFlip() float64 {
	fillBuyOrders := nanSum(r.history.instaSellVolumes())
	fillSellOrders := nanSum(r.history.instaBuyVolumes())

	buyWait := math.Inf(1)
	if fillBuyOrders != 0 {
		buyWait = 60 / fillBuyOrders
	}
	sellWait := math.Inf(1)
	if fillSellOrders != 0 {
		sellWait = 60 / fillSellOrders
	}

	return buyWait + sellWait
}

// computeProfitPerHour projects the recent margin over the number of flips
// an always-active trader completes in an hour.
func (r *Recommender) computeProfitPerHour() float64 {
	flipsPerHour := 60 / r.minutesPerFlip
	recentMargin := nanMean(tail(r.history.margins(), recentWindow))
	return recentMargin * flipsPerHour
}

// computeProfitHalfLife estimates the minutes until the margin halves. A
// non-decaying margin never halves; an undefined rate propagates as NaN.
func (r *Recommender) computeProfitHalfLife() float64 {
	rate := weightedRateOfChange(r.history.margins(), r.history.timestamps(),
		defaultPositionsPct, defaultWeights, recentWindow)

	switch {
	case math.IsNaN(rate):
		return math.NaN()
	case rate >= 0:
		return math.Inf(1)
	default:
		return math.Max(0, -0.5/rate)
	}
}

// computeCompetitiveness averages the out-bid factors of both sides. An empty
// side contributes a factor of zero.
func (r *Recommender) computeCompetitiveness() float64 {
	var buyFactor, sellFactor float64
	if r.buyBook.Len() > 0 {
		buyFactor = outBidFactor(r.buyBook)
	}
	if r.sellBook.Len() > 0 {
		sellFactor = outBidFactor(r.sellBook)
	}
	return (buyFactor + sellFactor) / 2
}

// ItemID returns the item identifier.
func (r *Recommender) ItemID() string { return r.itemID }

// History returns a copy of the derived history table.
func (r *Recommender) History() History {
	return History{rows: r.history.Rows()}
}

// BuyBook returns a copy of the processed buy-side order book.
func (r *Recommender) BuyBook() Book { return Book{rows: r.buyBook.Rows()} }

// SellBook returns a copy of the processed sell-side order book.
func (r *Recommender) SellBook() Book { return Book{rows: r.sellBook.Rows()} }

// MinutesPerFlip is the expected round-trip duration in minutes.
func (r *Recommender) MinutesPerFlip() float64 { return r.minutesPerFlip }

// ProfitPerHour is the expected hourly profit under continuous execution.
func (r *Recommender) ProfitPerHour() float64 { return r.profitPerHour }

// ProfitHalfLife is the estimated minutes until the margin halves.
func (r *Recommender) ProfitHalfLife() float64 { return r.profitHalfLife }

// Competitiveness measures how aggressively traders out-bid on this item.
func (r *Recommender) Competitiveness() float64 { return r.competitiveness }

// Score is the composite ranking scalar: profit discounted by competition.
func (r *Recommender) Score() float64 { return r.score }

// BuyOrderPrice is the latest buy-order price.
func (r *Recommender) BuyOrderPrice() float64 { return r.history.Last().BuyOrderPrice }

// SellOrderPrice is the latest sell-order price.
func (r *Recommender) SellOrderPrice() float64 { return r.history.Last().SellOrderPrice }

// BuyOrderVolume is the latest queued buy-order volume.
func (r *Recommender) BuyOrderVolume() float64 { return r.history.Last().BuyOrderVolume }

// SellOrderVolume is the latest queued sell-order volume.
func (r *Recommender) SellOrderVolume() float64 { return r.history.Last().SellOrderVolume }

// InstaBuyVolume is the mean weekly instant-buy volume converted to an
// hourly rate.
func (r *Recommender) InstaBuyVolume() float64 {
	return nanMean(r.history.instaBuyVolumesWeek()) / 7 / 24
}

// InstaSellVolume is the mean weekly instant-sell volume converted to an
// hourly rate.
func (r *Recommender) InstaSellVolume() float64 {
	return nanMean(r.history.instaSellVolumesWeek()) / 7 / 24
}

// Margin is the latest post-tax spread.
func (r *Recommender) Margin() float64 { return r.history.Last().Margin }

// Timestamp is the time of the latest history row.
func (r *Recommender) Timestamp() time.Time { return r.history.Last().Timestamp }
