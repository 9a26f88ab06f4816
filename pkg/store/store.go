// Package store provides per-run persistence for artifacts, LLM cache
// entries, batch jobs, and execution state. Backends share one
// semantic contract; the executor is the only writer of any given
// artifact key.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/waivern/wct/pkg/message"
)

var (
	// ErrArtifactNotFound is returned by Get for absent keys.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrInvalidKey marks a rejected storage key.
	ErrInvalidKey = errors.New("invalid storage key")
)

// SystemPrefix guards run bookkeeping (state, metadata) from ListKeys
// and Clear.
const SystemPrefix = "_system/"

// Well-known key prefixes within a run.
const (
	ArtifactPrefix = "artifacts/"
	CachePrefix    = "cache/"
	BatchJobPrefix = "batch_jobs/"
	StateKey       = SystemPrefix + "state"
	MetadataKey    = SystemPrefix + "metadata"
)

// Run lifecycle states recorded in run metadata.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusPaused    = "paused"
)

// RunMetadata describes one known run.
type RunMetadata struct {
	RunID       string    `json:"run_id"`
	RunbookPath string    `json:"runbook_path"`
	StartedAt   time.Time `json:"start_timestamp"`
	Status      string    `json:"status"`
}

// Store is the artifact store contract. Keys are slash-delimited
// logical paths scoped by run id.
type Store interface {
	// Save upserts a message under (runID, key).
	Save(ctx context.Context, runID, key string, msg *message.Message) error
	// Get returns the message at (runID, key) or ErrArtifactNotFound.
	Get(ctx context.Context, runID, key string) (*message.Message, error)
	// Exists reports whether (runID, key) holds a value.
	Exists(ctx context.Context, runID, key string) (bool, error)
	// Delete removes (runID, key); absent keys are a no-op.
	Delete(ctx context.Context, runID, key string) error
	// ListKeys returns keys under prefix, excluding the _system/
	// prefix, sorted.
	ListKeys(ctx context.Context, runID, prefix string) ([]string, error)
	// Clear removes every key for the run except _system/ bookkeeping.
	Clear(ctx context.Context, runID string) error

	// PutDoc and GetDoc store arbitrary JSON documents (state, cache
	// entries, batch jobs) under the same key space.
	PutDoc(ctx context.Context, runID, key string, v any) error
	GetDoc(ctx context.Context, runID, key string, v any) error

	// SaveRunMetadata records or updates run bookkeeping.
	SaveRunMetadata(ctx context.Context, md RunMetadata) error
	// ListRuns returns known runs, most recent first, optionally
	// filtered by status.
	ListRuns(ctx context.Context, statusFilter string) ([]RunMetadata, error)
}

// ValidateKey rejects traversal segments, absolute paths, and empty
// keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: traversal segment in %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", ErrInvalidKey)
	}
	if strings.ContainsAny(runID, "/\\") {
		return fmt.Errorf("%w: run id %q contains path separators", ErrInvalidKey, runID)
	}
	return nil
}

// backend is the raw byte-level contract implemented per storage
// technology. The semantic layer (key validation, system-prefix
// exclusion, JSON encoding) lives in base.
type backend interface {
	put(ctx context.Context, runID, key string, body []byte) error
	get(ctx context.Context, runID, key string) ([]byte, error)
	exists(ctx context.Context, runID, key string) (bool, error)
	del(ctx context.Context, runID, key string) error
	// list returns every key for the run, including system keys.
	list(ctx context.Context, runID string) ([]string, error)
	saveRun(ctx context.Context, md RunMetadata) error
	listRuns(ctx context.Context) ([]RunMetadata, error)
}

// base adapts a backend to the Store contract.
type base struct {
	b backend
}

func (s *base) Save(ctx context.Context, runID, key string, msg *message.Message) error {
	if err := s.check(runID, key); err != nil {
		return err
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return s.b.put(ctx, runID, key, data)
}

func (s *base) Get(ctx context.Context, runID, key string) (*message.Message, error) {
	if err := s.check(runID, key); err != nil {
		return nil, err
	}
	data, err := s.b.get(ctx, runID, key)
	if err != nil {
		return nil, err
	}
	return message.Unmarshal(data)
}

func (s *base) Exists(ctx context.Context, runID, key string) (bool, error) {
	if err := s.check(runID, key); err != nil {
		return false, err
	}
	return s.b.exists(ctx, runID, key)
}

func (s *base) Delete(ctx context.Context, runID, key string) error {
	if err := s.check(runID, key); err != nil {
		return err
	}
	return s.b.del(ctx, runID, key)
}

func (s *base) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	all, err := s.b.list(ctx, runID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range all {
		if strings.HasPrefix(k, SystemPrefix) {
			continue
		}
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *base) Clear(ctx context.Context, runID string) error {
	keys, err := s.ListKeys(ctx, runID, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.b.del(ctx, runID, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *base) PutDoc(ctx context.Context, runID, key string, v any) error {
	if err := s.check(runID, key); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal doc %s: %w", key, err)
	}
	return s.b.put(ctx, runID, key, data)
}

func (s *base) GetDoc(ctx context.Context, runID, key string, v any) error {
	if err := s.check(runID, key); err != nil {
		return err
	}
	data, err := s.b.get(ctx, runID, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal doc %s: %w", key, err)
	}
	return nil
}

func (s *base) SaveRunMetadata(ctx context.Context, md RunMetadata) error {
	if err := validateRunID(md.RunID); err != nil {
		return err
	}
	return s.b.saveRun(ctx, md)
}

func (s *base) ListRuns(ctx context.Context, statusFilter string) ([]RunMetadata, error) {
	runs, err := s.b.listRuns(ctx)
	if err != nil {
		return nil, err
	}
	var out []RunMetadata
	for _, r := range runs {
		if statusFilter != "" && r.Status != statusFilter {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *base) check(runID, key string) error {
	if err := validateRunID(runID); err != nil {
		return err
	}
	return ValidateKey(key)
}
