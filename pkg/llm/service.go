package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/waivern/wct/pkg/store"
)

// BatchJob is the persisted record of one asynchronous submission.
type BatchJob struct {
	BatchID     string      `json:"batch_id"`
	Provider    string      `json:"provider"`
	Model       string      `json:"model"`
	CacheKeys   []string    `json:"cache_keys"`
	Status      BatchStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// jobKey is the store key for a batch job record.
func jobKey(batchID string) string { return store.BatchJobPrefix + batchID }

// ServiceOptions tunes a Service.
type ServiceOptions struct {
	Logger            *slog.Logger
	RequestsPerSecond float64
	BatchSize         int
	TokensPerItem     int
}

// Service executes structured completions over groups of items with
// caching and batching. When the provider also implements BatchClient,
// cache misses are submitted asynchronously and Complete returns a
// PendingBatch error instead of blocking.
type Service struct {
	client  Client
	cache   CacheStore
	jobs    store.Store
	limiter *rate.Limiter
	logger  *slog.Logger
	planner PlannerConfig
}

// NewService wires a completion service. The store holds BatchJob
// records; the cache holds per-prompt entries.
func NewService(client Client, cache CacheStore, jobs store.Store, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Service{
		client:  client,
		cache:   cache,
		jobs:    jobs,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
		planner: PlannerConfig{
			BatchSize:     opts.BatchSize,
			TokensPerItem: opts.TokensPerItem,
		},
	}
}

// Complete runs the groups through the provider. Responses come back
// one per planned batch in planning order. With a batch-capable
// provider, uncached prompts are submitted as one asynchronous job and
// the returned error is a *PendingBatch.
func (s *Service) Complete(ctx context.Context, runID string, groups []Group, build PromptBuilder, schema ResponseSchema, mode BatchingMode) (*CompletionResult, error) {
	if s.client == nil {
		return nil, ErrNoProvider
	}

	cfg := s.planner
	cfg.MaxPayloadTokens = MaxPayloadTokens(s.client.ContextWindow())
	batches, skipped := PlanBatches(groups, mode, cfg)

	result := &CompletionResult{Skipped: skipped}
	batchClient, asyncCapable := s.client.(BatchClient)

	var (
		submitReqs  []BatchRequest
		pendingIDs  []string
		pendingSeen = map[string]bool{}
	)

	for i, batch := range batches {
		prompt, err := build(batch.Items(), batch.SharedContent())
		if err != nil {
			return nil, fmt.Errorf("build prompt for batch %d: %w", i, err)
		}
		key, err := CacheKey(prompt, s.client.Model(), schema.Name)
		if err != nil {
			return nil, err
		}

		entry, err := getEntry(ctx, s.cache, runID, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			switch entry.Status {
			case CacheCompleted:
				result.Responses = append(result.Responses, entry.Response)
				continue
			case CachePending:
				if !pendingSeen[entry.BatchID] {
					pendingSeen[entry.BatchID] = true
					pendingIDs = append(pendingIDs, entry.BatchID)
				}
				continue
			case CacheFailed:
				return nil, fmt.Errorf("completion %s failed: %s", key, entry.Error)
			}
		}

		if asyncCapable {
			submitReqs = append(submitReqs, BatchRequest{CustomID: key, Prompt: prompt, Schema: schema})
			continue
		}

		raw, err := s.invoke(ctx, key, prompt, schema)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, runID, key, CacheEntry{
			Status:    CacheCompleted,
			Response:  raw,
			Model:     s.client.Model(),
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		result.Responses = append(result.Responses, raw)
	}

	if len(submitReqs) > 0 {
		batchID, err := s.submit(ctx, runID, batchClient, submitReqs)
		if err != nil {
			return nil, err
		}
		pendingIDs = append(pendingIDs, batchID)
	}
	if len(pendingIDs) > 0 {
		return nil, &PendingBatch{RunID: runID, BatchIDs: pendingIDs}
	}
	return result, nil
}

// invoke calls the sync provider with rate limiting and one retry.
func (s *Service) invoke(ctx context.Context, key, prompt string, schema ResponseSchema) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err := withRetry(ctx, key, func() error {
		resp, err := s.client.InvokeStructured(ctx, prompt, schema)
		if err != nil {
			return err
		}
		raw = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w", s.client.Provider(), s.client.Model(), err)
	}
	return raw, nil
}

// submit sends the accumulated requests as one asynchronous job,
// writes pending cache entries and persists the BatchJob record.
func (s *Service) submit(ctx context.Context, runID string, bc BatchClient, reqs []BatchRequest) (string, error) {
	batchID, err := bc.SubmitBatch(ctx, reqs)
	if err != nil {
		return "", fmt.Errorf("submit batch: %w", err)
	}

	now := time.Now().UTC()
	keys := make([]string, 0, len(reqs))
	for _, r := range reqs {
		keys = append(keys, r.CustomID)
		if err := s.cache.Set(ctx, runID, r.CustomID, CacheEntry{
			Status:    CachePending,
			BatchID:   batchID,
			Model:     s.client.Model(),
			UpdatedAt: now,
		}); err != nil {
			return "", err
		}
	}

	job := BatchJob{
		BatchID:     batchID,
		Provider:    s.client.Provider(),
		Model:       s.client.Model(),
		CacheKeys:   keys,
		Status:      BatchSubmitted,
		SubmittedAt: now,
	}
	if err := s.jobs.PutDoc(ctx, runID, jobKey(batchID), job); err != nil {
		return "", err
	}
	s.logger.Info("batch submitted",
		"run_id", runID,
		"batch_id", batchID,
		"provider", job.Provider,
		"requests", len(keys))
	return batchID, nil
}

// ClearCache drops every cache entry for the run. Called on
// successful run completion.
func (s *Service) ClearCache(ctx context.Context, runID string) error {
	return s.cache.Clear(ctx, runID)
}
