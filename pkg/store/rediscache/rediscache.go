// Package rediscache implements the LLM cache view over Redis so
// batch-mode runs can share cached completions across processes.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long cache entries outlive their run.
const DefaultTTL = 7 * 24 * time.Hour

// Cache satisfies llm.CacheStore backed by a Redis instance. Keys are
// namespaced wct:cache:{run_id}:{key}.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis instance at addr.
func New(addr string) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    DefaultTTL,
	}, nil
}

func cacheKey(runID, key string) string {
	return "wct:cache:" + runID + ":" + key
}

// Get returns the raw entry or nil when absent.
func (c *Cache) Get(ctx context.Context, runID, key string) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, cacheKey(runID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores an entry under the run's namespace.
func (c *Cache) Set(ctx context.Context, runID, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", key, err)
	}
	if err := c.client.Set(ctx, cacheKey(runID, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Clear removes every cache entry for the run.
func (c *Cache) Clear(ctx context.Context, runID string) error {
	pattern := cacheKey(runID, "*")
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear run %s: %w", runID, err)
	}
	return nil
}

// Close releases the client connection.
func (c *Cache) Close() error { return c.client.Close() }
