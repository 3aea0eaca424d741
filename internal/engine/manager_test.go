package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarlab/flipscan/internal/bazaar"
)

func f(v float64) *float64 { return &v }

// fakeFetcher is an in-memory Fetcher with per-endpoint call counting and
// per-item history failures.
type fakeFetcher struct {
	mu sync.Mutex

	eligible []string
	books    bazaar.OrderBookSet
	history  map[string][]bazaar.HistoryRow
	items    []string

	historyErr map[string]error
	listErr    error

	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		books:      bazaar.OrderBookSet{},
		history:    map[string][]bazaar.HistoryRow{},
		historyErr: map[string]error{},
		calls:      map[string]int{},
	}
}

func (ff *fakeFetcher) count(endpoint string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.calls[endpoint]++
}

func (ff *fakeFetcher) callCount(endpoint string) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.calls[endpoint]
}

func (ff *fakeFetcher) FetchOrderBooks(ctx context.Context) (bazaar.OrderBookSet, error) {
	ff.count("snapshot")
	return ff.books, nil
}

func (ff *fakeFetcher) FetchEligibleItems(ctx context.Context) ([]string, error) {
	ff.count("eligible")
	if ff.listErr != nil {
		return nil, ff.listErr
	}
	return ff.eligible, nil
}

func (ff *fakeFetcher) FetchHistory(ctx context.Context, itemID string) ([]bazaar.HistoryRow, error) {
	ff.count("history")
	if err := ff.historyErr[itemID]; err != nil {
		return nil, err
	}
	return ff.history[itemID], nil
}

func (ff *fakeFetcher) FetchAllItems(ctx context.Context) ([]string, error) {
	ff.count("items")
	return ff.items, nil
}

func (ff *fakeFetcher) Close() { ff.count("close") }

// historyWithSpread builds two hourly rows with the given pre-tax spread and
// enough volume flow to score.
func historyWithSpread(spread float64) []bazaar.HistoryRow {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []bazaar.HistoryRow{
		{
			Timestamp: t0,
			Buy:       f(1000 + spread), Sell: f(1000),
			BuyMovingWeek: f(1000), SellMovingWeek: f(1000),
		},
		{
			Timestamp: t0.Add(time.Hour),
			Buy:       f(1000 + spread), Sell: f(1000),
			BuyMovingWeek: f(1120), SellMovingWeek: f(1120),
		},
	}
}

func testManager(ff *fakeFetcher) *Manager {
	return NewManager(ff, Config{}, nil)
}

func TestRefreshPopulatesRecommenders(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A", "B"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.books["B"] = bazaar.OrderBook{}
	ff.history["A"] = historyWithSpread(100)
	ff.history["B"] = historyWithSpread(200)

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))

	recA, ok := m.GetRecommender("A")
	require.True(t, ok)
	assert.Equal(t, "A", recA.ItemID())

	_, ok = m.GetRecommender("B")
	assert.True(t, ok)
}

func TestRefreshSkipsUntrackedItem(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"GHOST"}
	// No order book for GHOST.

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))

	_, ok := m.GetRecommender("GHOST")
	assert.False(t, ok)
	assert.Equal(t, 0, ff.callCount("history"), "no history fetch without a book")
}

func TestRefreshSkipsFailedHistoryFetch(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A", "B"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.books["B"] = bazaar.OrderBook{}
	ff.history["B"] = historyWithSpread(100)
	ff.historyErr["A"] = &bazaar.HTTPError{Status: 429, URL: "http://x"}

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()), "per-item failures do not fail the cycle")

	_, ok := m.GetRecommender("A")
	assert.False(t, ok)
	_, ok = m.GetRecommender("B")
	assert.True(t, ok, "other items still refreshed")
}

func TestRefreshSkipsEmptyHistory(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.history["A"] = nil

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))

	_, ok := m.GetRecommender("A")
	assert.False(t, ok)
}

func TestRefreshFailsWhenListFetchFails(t *testing.T) {
	ff := newFakeFetcher()
	ff.listErr = &bazaar.HTTPError{Status: 500, URL: "http://x"}

	m := testManager(ff)
	err := m.Refresh(context.Background())

	var httpErr *bazaar.HTTPError
	require.ErrorAs(t, err, &httpErr)
}

func TestRefreshSkipsFreshRecommenders(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.history["A"] = historyWithSpread(100)

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	assert.Equal(t, 1, ff.callCount("history"), "fresh recommender not refetched")
}

func TestEligibleItemsCached(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A"}

	m := testManager(ff)

	_, err := m.EligibleItems(context.Background())
	require.NoError(t, err)
	_, err = m.EligibleItems(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ff.callCount("eligible"))
}

func TestAllItemsCached(t *testing.T) {
	ff := newFakeFetcher()
	ff.items = []string{"A", "B", "C"}

	m := testManager(ff)

	items, err := m.AllItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, items)

	_, err = m.AllItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ff.callCount("items"))
}

func TestRecommendersIntersectsEligible(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A", "B"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.history["A"] = historyWithSpread(100)
	// B is eligible but never scored.

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))

	recs, err := m.Recommenders(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].ItemID())
}

func TestTopFlipsOrdersByProfitPerHour(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"LOW", "HIGH", "MID"}
	for _, id := range ff.eligible {
		ff.books[id] = bazaar.OrderBook{}
	}
	ff.history["LOW"] = historyWithSpread(100)
	ff.history["HIGH"] = historyWithSpread(900)
	ff.history["MID"] = historyWithSpread(500)

	m := testManager(ff)
	require.NoError(t, m.Refresh(context.Background()))

	recs, err := m.TopFlips(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "HIGH", recs[0].ItemID())
	assert.Equal(t, "MID", recs[1].ItemID())
	assert.Equal(t, "LOW", recs[2].ItemID())

	top2, err := m.TopFlips(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top2, 2)
	assert.Equal(t, "HIGH", top2[0].ItemID())
}

func TestGreaterNaNLast(t *testing.T) {
	nan := 0.0
	nan /= nan

	assert.True(t, greaterNaNLast(2, 1))
	assert.False(t, greaterNaNLast(1, 2))
	assert.True(t, greaterNaNLast(1, nan))
	assert.False(t, greaterNaNLast(nan, 1))
	assert.False(t, greaterNaNLast(nan, nan))
}

func TestRunStopsOnCancel(t *testing.T) {
	ff := newFakeFetcher()
	m := NewManager(ff, Config{CycleInterval: time.Millisecond, ErrorBackoff: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop on cancel")
	}
}

func TestCloseReleasesClient(t *testing.T) {
	ff := newFakeFetcher()
	m := testManager(ff)
	m.Close()
	assert.Equal(t, 1, ff.callCount("close"))
}

type recordingPublisher struct {
	mu    sync.Mutex
	flips [][]Summary
}

func (p *recordingPublisher) Publish(ctx context.Context, flips []Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flips = append(p.flips, flips)
	return nil
}

func TestRefreshPublishesRankedSummaries(t *testing.T) {
	ff := newFakeFetcher()
	ff.eligible = []string{"A", "B"}
	ff.books["A"] = bazaar.OrderBook{}
	ff.books["B"] = bazaar.OrderBook{}
	ff.history["A"] = historyWithSpread(100)
	ff.history["B"] = historyWithSpread(300)

	m := testManager(ff)
	pub := &recordingPublisher{}
	m.SetPublisher(pub)

	require.NoError(t, m.Refresh(context.Background()))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.flips, 1)
	require.Len(t, pub.flips[0], 2)
	assert.Equal(t, "B", pub.flips[0][0].ItemID, "best profit first")
	require.NotNil(t, pub.flips[0][0].ProfitPerHour)
}
