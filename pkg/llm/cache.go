package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// CacheStatus is the lifecycle of a cached completion.
type CacheStatus string

const (
	CacheCompleted CacheStatus = "completed"
	CachePending   CacheStatus = "pending"
	CacheFailed    CacheStatus = "failed"
)

// CacheEntry is the stored record for one prompt's completion.
type CacheEntry struct {
	Status    CacheStatus     `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	BatchID   string          `json:"batch_id,omitempty"`
	Model     string          `json:"model"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CacheStore is the run-scoped cache view the service writes through.
// Implemented by store.Cache and rediscache.Cache.
type CacheStore interface {
	Get(ctx context.Context, runID, key string) (json.RawMessage, error)
	Set(ctx context.Context, runID, key string, value any) error
	Clear(ctx context.Context, runID string) error
}

// CacheKey derives the deterministic cache key for a completion:
// sha256 over the JCS-canonicalised (prompt, model, schema name)
// triple. Equal inputs always produce equal keys.
func CacheKey(prompt, model, schemaName string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"prompt": prompt,
		"model":  model,
		"schema": schemaName,
	})
	if err != nil {
		return "", fmt.Errorf("marshal cache key payload: %w", err)
	}
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalise cache key payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// getEntry reads and decodes a cache entry; nil when absent.
func getEntry(ctx context.Context, c CacheStore, runID, key string) (*CacheEntry, error) {
	raw, err := c.Get(ctx, runID, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var e CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}
