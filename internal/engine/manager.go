package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bazaarlab/flipscan/internal/bazaar"
	"github.com/bazaarlab/flipscan/internal/cache"
	"github.com/bazaarlab/flipscan/internal/flip"
	"github.com/bazaarlab/flipscan/internal/telemetry"
)

// singletonKey is the fixed key used by the whole-market caches.
const singletonKey = "_"

// Fetcher is the remote-data dependency of the manager. *bazaar.Client
// satisfies it; tests substitute fakes.
type Fetcher interface {
	FetchOrderBooks(ctx context.Context) (bazaar.OrderBookSet, error)
	FetchEligibleItems(ctx context.Context) ([]string, error)
	FetchHistory(ctx context.Context, itemID string) ([]bazaar.HistoryRow, error)
	FetchAllItems(ctx context.Context) ([]string, error)
	Close()
}

// Config bounds the caches and paces the refresh loop.
type Config struct {
	EligibleTTL         time.Duration
	OrderBookTTL        time.Duration
	RecommenderTTL      time.Duration
	RecommenderCapacity int
	ItemsTTL            time.Duration

	CycleInterval time.Duration // pause after a clean cycle
	ErrorBackoff  time.Duration // pause after a failed cycle
}

// DefaultConfig matches market volatility: the whole-market caches turn over
// every minute, recommenders every five.
func DefaultConfig() Config {
	return Config{
		EligibleTTL:         60 * time.Second,
		OrderBookTTL:        60 * time.Second,
		RecommenderTTL:      5 * time.Minute,
		RecommenderCapacity: 2000,
		ItemsTTL:            time.Hour,
		CycleInterval:       5 * time.Second,
		ErrorBackoff:        5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EligibleTTL <= 0 {
		c.EligibleTTL = d.EligibleTTL
	}
	if c.OrderBookTTL <= 0 {
		c.OrderBookTTL = d.OrderBookTTL
	}
	if c.RecommenderTTL <= 0 {
		c.RecommenderTTL = d.RecommenderTTL
	}
	if c.RecommenderCapacity <= 0 {
		c.RecommenderCapacity = d.RecommenderCapacity
	}
	if c.ItemsTTL <= 0 {
		c.ItemsTTL = d.ItemsTTL
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = d.CycleInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	return c
}

// Manager owns the fetch client and the analytics caches. It is the explicit
// context object the process entry point constructs once and passes to the
// read boundary and the refresh loop. No lock spans the caches: a read may
// observe them mid-cycle, and the eligible list and order-book snapshot used
// within one cycle may reflect slightly different market instants.
type Manager struct {
	client    Fetcher
	config    Config
	metrics   *telemetry.Metrics
	publisher Publisher

	recommenders *cache.TTL[*flip.Recommender]
	orderBooks   *cache.TTL[bazaar.OrderBookSet]
	eligible     *cache.TTL[[]string]
	allItems     *cache.TTL[[]string]
}

// NewManager builds a manager around an already constructed fetcher.
func NewManager(client Fetcher, config Config, metrics *telemetry.Metrics) *Manager {
	config = config.withDefaults()
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}

	return &Manager{
		client:       client,
		config:       config,
		metrics:      metrics,
		recommenders: cache.NewTTL[*flip.Recommender](config.RecommenderCapacity, config.RecommenderTTL),
		orderBooks:   cache.NewTTL[bazaar.OrderBookSet](1, config.OrderBookTTL),
		eligible:     cache.NewTTL[[]string](1, config.EligibleTTL),
		allItems:     cache.NewTTL[[]string](1, config.ItemsTTL),
	}
}

// SetPublisher attaches an optional publisher that receives the ranked
// summaries after each successful refresh cycle. Must be called before Run.
func (m *Manager) SetPublisher(p Publisher) { m.publisher = p }

// Metrics exposes the instrument registry for the HTTP surface.
func (m *Manager) Metrics() *telemetry.Metrics { return m.metrics }

// EligibleItems returns the cached eligible-items list, fetching and
// filtering a fresh snapshot on miss or expiry.
func (m *Manager) EligibleItems(ctx context.Context) ([]string, error) {
	if items, ok := m.eligible.Get(singletonKey); ok {
		m.metrics.CacheHits.WithLabelValues("eligible").Inc()
		return items, nil
	}
	m.metrics.CacheMisses.WithLabelValues("eligible").Inc()

	items, err := m.client.FetchEligibleItems(ctx)
	m.countFetch("eligible", err)
	if err != nil {
		return nil, err
	}

	m.eligible.Set(singletonKey, items)
	return items, nil
}

// OrderBooks returns the cached full-market order-book snapshot, fetching on
// miss or expiry.
func (m *Manager) OrderBooks(ctx context.Context) (bazaar.OrderBookSet, error) {
	if books, ok := m.orderBooks.Get(singletonKey); ok {
		m.metrics.CacheHits.WithLabelValues("orderbooks").Inc()
		return books, nil
	}
	m.metrics.CacheMisses.WithLabelValues("orderbooks").Inc()

	books, err := m.client.FetchOrderBooks(ctx)
	m.countFetch("snapshot", err)
	if err != nil {
		return nil, err
	}

	m.orderBooks.Set(singletonKey, books)
	return books, nil
}

// AllItems returns the cached full tag list of tracked items.
func (m *Manager) AllItems(ctx context.Context) ([]string, error) {
	if items, ok := m.allItems.Get(singletonKey); ok {
		m.metrics.CacheHits.WithLabelValues("items").Inc()
		return items, nil
	}
	m.metrics.CacheMisses.WithLabelValues("items").Inc()

	items, err := m.client.FetchAllItems(ctx)
	m.countFetch("items", err)
	if err != nil {
		return nil, err
	}

	m.allItems.Set(singletonKey, items)
	return items, nil
}

// GetRecommender is a synchronous cache lookup; it never triggers a fetch.
func (m *Manager) GetRecommender(itemID string) (*flip.Recommender, bool) {
	rec, ok := m.recommenders.Get(itemID)
	if ok {
		m.metrics.CacheHits.WithLabelValues("recommenders").Inc()
	} else {
		m.metrics.CacheMisses.WithLabelValues("recommenders").Inc()
	}
	return rec, ok
}

// Recommenders returns all cached recommenders that are also currently
// eligible. The eligible list itself may be populated on miss.
func (m *Manager) Recommenders(ctx context.Context) ([]*flip.Recommender, error) {
	items, err := m.EligibleItems(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]*flip.Recommender, 0, len(items))
	for _, itemID := range items {
		if rec, ok := m.recommenders.Get(itemID); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// TopFlips returns the currently eligible cached recommenders sorted by
// profit per hour, best first, truncated to n when n > 0. NaN profits sort
// last.
func (m *Manager) TopFlips(ctx context.Context, n int) ([]*flip.Recommender, error) {
	recs, err := m.Recommenders(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return greaterNaNLast(recs[i].ProfitPerHour(), recs[j].ProfitPerHour())
	})

	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

// Refresh runs one orchestrator cycle: pull the eligible list and the
// order-book snapshot, then make sure every eligible item has a fresh
// recommender. Per-item failures are skipped and logged; only whole-cycle
// failures (list or snapshot fetch, cancellation) are returned.
func (m *Manager) Refresh(ctx context.Context) error {
	start := time.Now()

	err := m.refresh(ctx)
	m.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.RefreshCycles.WithLabelValues("error").Inc()
		return err
	}
	m.metrics.RefreshCycles.WithLabelValues("ok").Inc()

	if m.publisher != nil {
		if err := m.publish(ctx); err != nil {
			log.Error().Err(err).Msg("Publishing ranked flips failed")
		}
	}
	return nil
}

func (m *Manager) refresh(ctx context.Context) error {
	items, err := m.EligibleItems(ctx)
	if err != nil {
		return err
	}

	books, err := m.OrderBooks(ctx)
	if err != nil {
		return err
	}

	for _, itemID := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.refreshItem(ctx, itemID, books)
	}

	m.metrics.TrackedItems.Set(float64(m.recommenders.Len()))
	return nil
}

// refreshItem ensures one item has a fresh recommender. Every failure mode
// is a skip: the item is simply not scoreable this cycle.
func (m *Manager) refreshItem(ctx context.Context, itemID string, books bazaar.OrderBookSet) {
	if _, ok := m.recommenders.Get(itemID); ok {
		return // still fresh
	}

	book, ok := books[itemID]
	if !ok {
		log.Warn().Str("item", itemID).Msg("Skipped: not in order books")
		m.metrics.ItemsSkipped.WithLabelValues("untracked").Inc()
		return
	}

	raw, err := m.client.FetchHistory(ctx, itemID)
	m.countFetch("history", err)
	if err != nil {
		var httpErr *bazaar.HTTPError
		switch {
		case errors.As(err, &httpErr):
			log.Error().Str("item", itemID).Int("status", httpErr.Status).Msg("History fetch failed")
			m.metrics.ItemsSkipped.WithLabelValues("http_error").Inc()
		default:
			log.Error().Str("item", itemID).Err(err).Msg("History fetch failed")
			m.metrics.ItemsSkipped.WithLabelValues("fetch_error").Inc()
		}
		return
	}

	rec, err := flip.NewRecommender(itemID, raw, book)
	if err != nil {
		if errors.Is(err, flip.ErrNotEnoughData) {
			log.Warn().Str("item", itemID).Msg("Skipped: not enough data")
			m.metrics.ItemsSkipped.WithLabelValues("not_enough_data").Inc()
		} else {
			log.Error().Str("item", itemID).Err(err).Msg("Recommender construction failed")
			m.metrics.ItemsSkipped.WithLabelValues("construction_error").Inc()
		}
		return
	}

	m.recommenders.Set(itemID, rec)
}

// Run drives Refresh until ctx is cancelled. A failed cycle is logged and
// followed by the error backoff; a clean cycle by the regular interval. The
// loop itself never terminates on upstream failure.
func (m *Manager) Run(ctx context.Context) {
	for {
		err := m.Refresh(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Refresh loop stopped")
			return
		}

		pause := m.config.CycleInterval
		if err != nil {
			log.Error().Err(err).Msg("Refresh cycle failed")
			pause = m.config.ErrorBackoff
		}

		select {
		case <-time.After(pause):
		case <-ctx.Done():
			log.Info().Msg("Refresh loop stopped")
			return
		}
	}
}

// Close releases the shared fetch resource. No fetch may be issued after it.
func (m *Manager) Close() {
	m.client.Close()
}

func (m *Manager) countFetch(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.metrics.FetchesTotal.WithLabelValues(endpoint, result).Inc()
}

// greaterNaNLast orders descending with NaN values at the end.
func greaterNaNLast(a, b float64) bool {
	if a != a { // NaN
		return false
	}
	if b != b {
		return true
	}
	return a > b
}
