package bazaar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ClientConfig controls the remote fetcher.
type ClientConfig struct {
	SnapshotURL string // full market snapshot (order books + quick status)
	HistoryURL  string // printf template with one %s for the item identifier
	ItemsURL    string // full tracked-item tag list

	MaxConcurrency    int           // simultaneous in-flight requests, process-wide
	RequestsPerSecond float64       // client-side token bucket
	Burst             int           // token bucket burst capacity
	RetryAfterMin     time.Duration // floor for the rate-limit backoff hint
	RequestTimeout    time.Duration // zero means no per-call deadline
	UserAgent         string

	Thresholds Thresholds
}

// DefaultClientConfig points at the public endpoints with the stock limits:
// one request in flight at a time and a five second rate-limit floor.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SnapshotURL:       "https://api.hypixel.net/v2/skyblock/bazaar",
		HistoryURL:        "https://sky.coflnet.com/api/bazaar/%s/history/hour",
		ItemsURL:          "https://sky.coflnet.com/api/items/bazaar/tags",
		MaxConcurrency:    1,
		RequestsPerSecond: 2,
		Burst:             1,
		RetryAfterMin:     5 * time.Second,
		UserAgent:         "flipscan/1.0",
		Thresholds:        DefaultThresholds(),
	}
}

// Client fetches market snapshots and per-item hourly histories from the two
// upstream services. All requests pass through a bounded-concurrency gate and
// a token-bucket limiter; a 429 is retried exactly once after the advertised
// backoff. The client is a process-wide singleton shared by the refresh
// orchestrator and any read-triggered miss fills.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{}
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient builds a fetcher from config, applying defaults for zero values.
func NewClient(config ClientConfig) *Client {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.RetryAfterMin <= 0 {
		config.RetryAfterMin = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "bazaar",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Upstream circuit breaker state change")
		},
	})

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		semaphore: make(chan struct{}, config.MaxConcurrency),
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker:   breaker,
		closed:    make(chan struct{}),
	}
}

// FetchOrderBooks returns the current order books for every item in the
// market snapshot.
func (c *Client) FetchOrderBooks(ctx context.Context) (OrderBookSet, error) {
	var snapshot snapshotResponse
	if err := c.getJSON(ctx, c.config.SnapshotURL, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Products == nil {
		return nil, &DataError{URL: c.config.SnapshotURL, Err: fmt.Errorf("snapshot has no products map")}
	}

	books := make(OrderBookSet, len(snapshot.Products))
	for itemID, p := range snapshot.Products {
		// Upstream sell_summary lists the orders a buy order competes with.
		books[itemID] = OrderBook{
			Buy:  p.SellSummary,
			Sell: p.BuySummary,
		}
	}
	return books, nil
}

// FetchEligibleItems returns the identifiers in the current snapshot that
// pass the liquidity/margin thresholds, sorted for determinism.
func (c *Client) FetchEligibleItems(ctx context.Context) ([]string, error) {
	var snapshot snapshotResponse
	if err := c.getJSON(ctx, c.config.SnapshotURL, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Products == nil {
		return nil, &DataError{URL: c.config.SnapshotURL, Err: fmt.Errorf("snapshot has no products map")}
	}

	items := make([]string, 0, len(snapshot.Products))
	for itemID, p := range snapshot.Products {
		if c.config.Thresholds.Eligible(p.QuickStatus) {
			items = append(items, itemID)
		}
	}
	sort.Strings(items)

	log.Debug().Int("eligible", len(items)).Int("total", len(snapshot.Products)).
		Msg("Eligible items filtered from snapshot")
	return items, nil
}

// FetchHistory returns the hourly history rows for one item.
func (c *Client) FetchHistory(ctx context.Context, itemID string) ([]HistoryRow, error) {
	url := fmt.Sprintf(c.config.HistoryURL, itemID)
	var rows []HistoryRow
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchAllItems returns the full list of tracked item tags.
func (c *Client) FetchAllItems(ctx context.Context) ([]string, error) {
	var items []string
	if err := c.getJSON(ctx, c.config.ItemsURL, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Close releases the shared connection resource. Fetches issued afterwards
// fail with ErrClosed. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.httpClient.CloseIdleConnections()
	})
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DataError{URL: url, Err: err}
	}
	return nil
}

// get performs one GET with the rate-limit contract: a 429 response yields a
// single retry after max(Retry-After, configured minimum), with the
// concurrency slot released for the duration of the wait. Any other non-2xx
// status surfaces immediately as an HTTPError.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	body, status, retryAfter, err := c.doOnce(ctx, url)
	if err != nil {
		return nil, err
	}

	if status == http.StatusTooManyRequests {
		wait := c.config.RetryAfterMin
		if retryAfter > wait {
			wait = retryAfter
		}
		log.Warn().Str("url", url).Dur("wait", wait).Msg("Rate limited, backing off before retry")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		body, status, _, err = c.doOnce(ctx, url)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, &HTTPError{Status: status, URL: url}
	}
	return body, nil
}

// doOnce issues a single request through the concurrency gate and the token
// bucket. It returns the response body and status; transport failures count
// against the circuit breaker.
func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, time.Duration, error) {
	select {
	case <-c.closed:
		return nil, 0, 0, ErrClosed
	default:
	}

	select {
	case c.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	}
	defer func() { <-c.semaphore }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	log.Debug().Str("url", url).Msg("GET")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("GET %s: %w", url, err)
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("GET %s: read body: %w", url, err)
	}

	return body, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
