// Package publish exports ranked flip summaries to external consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/bazaarlab/flipscan/internal/engine"
)

// RedisConfig locates the Redis instance and the key the ranked list is
// written to.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// DefaultRedisConfig writes to a local Redis under a short-lived key.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "flipscan:top_flips",
		TTL:  time.Minute,
	}
}

// RedisPublisher writes the ranked summaries as one JSON value after each
// refresh cycle. This is an advisory export: a restart loses nothing, the
// in-memory caches rebuild from upstream.
type RedisPublisher struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPublisher connects a publisher to the configured instance.
func NewRedisPublisher(config RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewRedisPublisherWithClient(client, config.Key, config.TTL)
}

// NewRedisPublisherWithClient wraps an existing client; tests pass a mock.
func NewRedisPublisherWithClient(client *redis.Client, key string, ttl time.Duration) *RedisPublisher {
	if key == "" {
		key = "flipscan:top_flips"
	}
	return &RedisPublisher{client: client, key: key, ttl: ttl}
}

// Publish overwrites the key with the current ranked list.
func (p *RedisPublisher) Publish(ctx context.Context, flips []engine.Summary) error {
	data, err := json.Marshal(flips)
	if err != nil {
		return fmt.Errorf("marshal flips: %w", err)
	}

	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}

	log.Debug().Str("key", p.key).Int("flips", len(flips)).Msg("Ranked flips published")
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
