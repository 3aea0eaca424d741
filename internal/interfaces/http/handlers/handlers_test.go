package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarlab/flipscan/internal/bazaar"
	"github.com/bazaarlab/flipscan/internal/engine"
	httpContracts "github.com/bazaarlab/flipscan/internal/http"
)

func f(v float64) *float64 { return &v }

type stubFetcher struct {
	eligible []string
	books    bazaar.OrderBookSet
	history  map[string][]bazaar.HistoryRow
	items    []string
	itemsErr error
	listErr  error
}

func (s *stubFetcher) FetchOrderBooks(ctx context.Context) (bazaar.OrderBookSet, error) {
	return s.books, nil
}

func (s *stubFetcher) FetchEligibleItems(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.eligible, nil
}

func (s *stubFetcher) FetchHistory(ctx context.Context, itemID string) ([]bazaar.HistoryRow, error) {
	return s.history[itemID], nil
}

func (s *stubFetcher) FetchAllItems(ctx context.Context) ([]string, error) {
	if s.itemsErr != nil {
		return nil, s.itemsErr
	}
	return s.items, nil
}

func (s *stubFetcher) Close() {}

func scoredHistory(spread float64) []bazaar.HistoryRow {
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

func refreshedHandlers(t *testing.T, stub *stubFetcher) *Handlers {
	t.Helper()
	m := engine.NewManager(stub, engine.Config{}, nil)
	require.NoError(t, m.Refresh(context.Background()))
	return NewHandlers(m)
}

func TestHealth(t *testing.T) {
	h := refreshedHandlers(t, &stubFetcher{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTopFlipsRanked(t *testing.T) {
	stub := &stubFetcher{
		eligible: []string{"LOW", "HIGH"},
		books:    bazaar.OrderBookSet{"LOW": {}, "HIGH": {}},
		history: map[string][]bazaar.HistoryRow{
			"LOW":  scoredHistory(100),
			"HIGH": scoredHistory(500),
		},
	}
	h := refreshedHandlers(t, stub)

	rec := httptest.NewRecorder()
	h.TopFlips(rec, httptest.NewRequest("GET", "/api/v1/top_flips", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.TopFlipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "HIGH", resp.Flips[0].ItemID)
	assert.Equal(t, "LOW", resp.Flips[1].ItemID)
	require.NotNil(t, resp.Flips[0].ProfitPerHour)
	assert.Greater(t, *resp.Flips[0].ProfitPerHour, *resp.Flips[1].ProfitPerHour)
}

func TestTopFlipsDegenerateScalarsAreNull(t *testing.T) {
	stub := &stubFetcher{
		eligible: []string{"A"},
		books:    bazaar.OrderBookSet{"A": {}},
		history:  map[string][]bazaar.HistoryRow{"A": scoredHistory(100)},
	}
	h := refreshedHandlers(t, stub)

	rec := httptest.NewRecorder()
	h.TopFlips(rec, httptest.NewRequest("GET", "/api/v1/top_flips", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Flips []map[string]json.RawMessage `json:"flips"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Flips, 1)

	// Constant margin makes the half-life infinite; it must serialize as
	// null, never Inf.
	assert.Equal(t, "null", string(raw.Flips[0]["profit_half_life"]))
	assert.NotEqual(t, "null", string(raw.Flips[0]["profit_per_hour"]))
}

func TestTopFlipsLimit(t *testing.T) {
	stub := &stubFetcher{
		eligible: []string{"A", "B", "C"},
		books:    bazaar.OrderBookSet{"A": {}, "B": {}, "C": {}},
		history: map[string][]bazaar.HistoryRow{
			"A": scoredHistory(100),
			"B": scoredHistory(200),
			"C": scoredHistory(300),
		},
	}
	h := refreshedHandlers(t, stub)

	rec := httptest.NewRecorder()
	h.TopFlips(rec, httptest.NewRequest("GET", "/api/v1/top_flips?top=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.TopFlipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "C", resp.Flips[0].ItemID)
}

func TestTopFlipsInvalidLimit(t *testing.T) {
	h := refreshedHandlers(t, &stubFetcher{})

	for _, q := range []string{"top=0", "top=-1", "top=101", "top=abc"} {
		rec := httptest.NewRecorder()
		h.TopFlips(rec, httptest.NewRequest("GET", "/api/v1/top_flips?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)

		var resp httpContracts.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_top", resp.Code)
	}
}

func TestPastHourReturnsHistory(t *testing.T) {
	stub := &stubFetcher{
		eligible: []string{"A"},
		books:    bazaar.OrderBookSet{"A": {}},
		history:  map[string][]bazaar.HistoryRow{"A": scoredHistory(100)},
	}
	h := refreshedHandlers(t, stub)

	req := httptest.NewRequest("GET", "/api/v1/past_hour/A", nil)
	req = mux.SetURLVars(req, map[string]string{"item_id": "A"})

	rec := httptest.NewRecorder()
	h.PastHour(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.PastHourResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 2)
	assert.Equal(t, "A", resp.Snapshots[0].ItemID)
	require.NotNil(t, resp.Snapshots[1].Margin)
	assert.InDelta(t, 100*0.98875, *resp.Snapshots[1].Margin, 1e-9)
	assert.Nil(t, resp.Snapshots[0].InstaBuyVolume, "first interval volume is undefined")
}

func TestPastHourUnknownItem(t *testing.T) {
	h := refreshedHandlers(t, &stubFetcher{})

	req := httptest.NewRequest("GET", "/api/v1/past_hour/NOPE", nil)
	req = mux.SetURLVars(req, map[string]string{"item_id": "NOPE"})

	rec := httptest.NewRecorder()
	h.PastHour(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httpContracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "item_not_found", resp.Code)
	assert.Equal(t, "Item not found", resp.Message)
}

func TestItems(t *testing.T) {
	stub := &stubFetcher{items: []string{"A", "B"}}
	h := refreshedHandlers(t, stub)

	rec := httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest("GET", "/api/v1/items", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpContracts.ItemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"A", "B"}, resp.Items)
}

func TestItemsUpstreamFailure(t *testing.T) {
	stub := &stubFetcher{itemsErr: &bazaar.HTTPError{Status: 500, URL: "http://x"}}
	h := refreshedHandlers(t, stub)

	rec := httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest("GET", "/api/v1/items", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp httpContracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "items_unavailable", resp.Code)
}

func TestTopFlipsUpstreamFailure(t *testing.T) {
	stub := &stubFetcher{listErr: &bazaar.HTTPError{Status: 503, URL: "http://x"}}
	m := engine.NewManager(stub, engine.Config{}, nil)
	h := NewHandlers(m)

	rec := httptest.NewRecorder()
	h.TopFlips(rec, httptest.NewRequest("GET", "/api/v1/top_flips", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp httpContracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "eligible_items_unavailable", resp.Code)
}

func TestWriteJSONEncodeFailureKeepsStatus(t *testing.T) {
	h := refreshedHandlers(t, &stubFetcher{})

	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, make(chan int)) // unencodable

	// The header is already out when encoding fails; the failure must not
	// smuggle a second status or a stray error body into the response.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestNotFoundEnvelope(t *testing.T) {
	h := refreshedHandlers(t, &stubFetcher{})

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest("GET", "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httpContracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "endpoint_not_found", resp.Code)
	assert.Equal(t, "unknown", resp.RequestID)
}
