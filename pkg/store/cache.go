package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Cache exposes the LLM response cache as a view over a run's
// cache/ key space. The cache is oblivious to whether entries came
// from sync or batch providers.
type Cache struct {
	store Store
}

// NewCache wraps a store with the cache view.
func NewCache(s Store) *Cache {
	return &Cache{store: s}
}

// Get returns the raw cached entry or nil when absent.
func (c *Cache) Get(ctx context.Context, runID, key string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.store.GetDoc(ctx, runID, CachePrefix+key, &raw)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

// Set stores a cache entry under the run.
func (c *Cache) Set(ctx context.Context, runID, key string, value any) error {
	return c.store.PutDoc(ctx, runID, CachePrefix+key, value)
}

// Clear removes every cache entry for the run. Called on successful
// run completion.
func (c *Cache) Clear(ctx context.Context, runID string) error {
	keys, err := c.store.ListKeys(ctx, runID, CachePrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, runID, k); err != nil {
			return err
		}
	}
	return nil
}
