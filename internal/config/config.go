package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bazaarlab/flipscan/internal/bazaar"
	"github.com/bazaarlab/flipscan/internal/engine"
	httpserver "github.com/bazaarlab/flipscan/internal/interfaces/http"
	"github.com/bazaarlab/flipscan/internal/publish"
)

// Config is the full service configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Cache       CacheConfig       `yaml:"cache"`
	Engine      EngineConfig      `yaml:"engine"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
}

// LogConfig controls zerolog.
type LogConfig struct {
	Level string `yaml:"level"` // trace, debug, info, warn, error
}

// UpstreamConfig locates and paces the two data providers.
type UpstreamConfig struct {
	SnapshotURL string `yaml:"snapshot_url"`
	HistoryURL  string `yaml:"history_url"` // template with one %s for the item id
	ItemsURL    string `yaml:"items_url"`

	MaxConcurrent      int     `yaml:"max_concurrent"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
	Burst              int     `yaml:"burst"`
	RetryAfterMinSecs  int     `yaml:"retry_after_min_secs"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs"` // zero means no deadline
	UserAgent          string  `yaml:"user_agent"`
}

// EligibilityConfig tunes the tracked-item filter.
type EligibilityConfig struct {
	MinSellPrice      float64 `yaml:"min_sell_price"`
	MinBuyPrice       float64 `yaml:"min_buy_price"`
	MinSpread         float64 `yaml:"min_spread"`
	MinBuyMovingWeek  float64 `yaml:"min_buy_moving_week"`
	MinSellMovingWeek float64 `yaml:"min_sell_moving_week"`
}

// CacheConfig bounds the three analytics caches.
type CacheConfig struct {
	EligibleTTLSecs     int `yaml:"eligible_ttl_secs"`
	OrderBookTTLSecs    int `yaml:"orderbook_ttl_secs"`
	RecommenderTTLSecs  int `yaml:"recommender_ttl_secs"`
	RecommenderCapacity int `yaml:"recommender_capacity"`
	ItemsTTLSecs        int `yaml:"items_ttl_secs"`
}

// EngineConfig paces the refresh loop.
type EngineConfig struct {
	CycleIntervalSecs int `yaml:"cycle_interval_secs"`
	ErrorBackoffSecs  int `yaml:"error_backoff_secs"`
}

// ServerConfig configures the read-only HTTP listener.
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	IdleTimeoutSecs  int    `yaml:"idle_timeout_secs"`
}

// RedisConfig enables the optional ranked-result publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// Default returns the stock configuration.
func Default() *Config {
	clientDefaults := bazaar.DefaultClientConfig()
	thresholds := bazaar.DefaultThresholds()
	engineDefaults := engine.DefaultConfig()
	serverDefaults := httpserver.DefaultServerConfig()
	redisDefaults := publish.DefaultRedisConfig()

	return &Config{
		Log: LogConfig{Level: "info"},
		Upstream: UpstreamConfig{
			SnapshotURL:       clientDefaults.SnapshotURL,
			HistoryURL:        clientDefaults.HistoryURL,
			ItemsURL:          clientDefaults.ItemsURL,
			MaxConcurrent:     clientDefaults.MaxConcurrency,
			RequestsPerSecond: clientDefaults.RequestsPerSecond,
			Burst:             clientDefaults.Burst,
			RetryAfterMinSecs: int(clientDefaults.RetryAfterMin / time.Second),
			UserAgent:         clientDefaults.UserAgent,
		},
		Eligibility: EligibilityConfig{
			MinSellPrice:      thresholds.MinSellPrice,
			MinBuyPrice:       thresholds.MinBuyPrice,
			MinSpread:         thresholds.MinSpread,
			MinBuyMovingWeek:  thresholds.MinBuyMovingWeek,
			MinSellMovingWeek: thresholds.MinSellMovingWeek,
		},
		Cache: CacheConfig{
			EligibleTTLSecs:     int(engineDefaults.EligibleTTL / time.Second),
			OrderBookTTLSecs:    int(engineDefaults.OrderBookTTL / time.Second),
			RecommenderTTLSecs:  int(engineDefaults.RecommenderTTL / time.Second),
			RecommenderCapacity: engineDefaults.RecommenderCapacity,
			ItemsTTLSecs:        int(engineDefaults.ItemsTTL / time.Second),
		},
		Engine: EngineConfig{
			CycleIntervalSecs: int(engineDefaults.CycleInterval / time.Second),
			ErrorBackoffSecs:  int(engineDefaults.ErrorBackoff / time.Second),
		},
		Server: ServerConfig{
			Host:             serverDefaults.Host,
			Port:             serverDefaults.Port,
			ReadTimeoutSecs:  int(serverDefaults.ReadTimeout / time.Second),
			WriteTimeoutSecs: int(serverDefaults.WriteTimeout / time.Second),
			IdleTimeoutSecs:  int(serverDefaults.IdleTimeout / time.Second),
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    redisDefaults.Addr,
			Key:     redisDefaults.Key,
			TTLSecs: int(redisDefaults.TTL / time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Upstream.SnapshotURL == "" {
		return fmt.Errorf("upstream.snapshot_url is required")
	}
	if c.Upstream.HistoryURL == "" {
		return fmt.Errorf("upstream.history_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.RecommenderCapacity <= 0 {
		return fmt.Errorf("cache.recommender_capacity must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled")
	}
	return nil
}

// ClientConfig converts to the fetcher configuration.
func (c *Config) ClientConfig() bazaar.ClientConfig {
	return bazaar.ClientConfig{
		SnapshotURL:       c.Upstream.SnapshotURL,
		HistoryURL:        c.Upstream.HistoryURL,
		ItemsURL:          c.Upstream.ItemsURL,
		MaxConcurrency:    c.Upstream.MaxConcurrent,
		RequestsPerSecond: c.Upstream.RequestsPerSecond,
		Burst:             c.Upstream.Burst,
		RetryAfterMin:     time.Duration(c.Upstream.RetryAfterMinSecs) * time.Second,
		RequestTimeout:    time.Duration(c.Upstream.RequestTimeoutSecs) * time.Second,
		UserAgent:         c.Upstream.UserAgent,
		Thresholds: bazaar.Thresholds{
			MinSellPrice:      c.Eligibility.MinSellPrice,
			MinBuyPrice:       c.Eligibility.MinBuyPrice,
			MinSpread:         c.Eligibility.MinSpread,
			MinBuyMovingWeek:  c.Eligibility.MinBuyMovingWeek,
			MinSellMovingWeek: c.Eligibility.MinSellMovingWeek,
		},
	}
}

// EngineConfig converts to the orchestrator configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		EligibleTTL:         time.Duration(c.Cache.EligibleTTLSecs) * time.Second,
		OrderBookTTL:        time.Duration(c.Cache.OrderBookTTLSecs) * time.Second,
		RecommenderTTL:      time.Duration(c.Cache.RecommenderTTLSecs) * time.Second,
		RecommenderCapacity: c.Cache.RecommenderCapacity,
		ItemsTTL:            time.Duration(c.Cache.ItemsTTLSecs) * time.Second,
		CycleInterval:       time.Duration(c.Engine.CycleIntervalSecs) * time.Second,
		ErrorBackoff:        time.Duration(c.Engine.ErrorBackoffSecs) * time.Second,
	}
}

// ServerConfig converts to the HTTP listener configuration.
func (c *Config) ServerConfig() httpserver.ServerConfig {
	return httpserver.ServerConfig{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		ReadTimeout:  time.Duration(c.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(c.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(c.Server.IdleTimeoutSecs) * time.Second,
	}
}

// RedisPublisherConfig converts to the publisher configuration.
func (c *Config) RedisPublisherConfig() publish.RedisConfig {
	return publish.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Key:      c.Redis.Key,
		TTL:      time.Duration(c.Redis.TTLSecs) * time.Second,
	}
}
