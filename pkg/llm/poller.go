package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waivern/wct/pkg/store"
)

// PollResult counts batch jobs by outcome of one poll pass.
type PollResult struct {
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Pending   int      `json:"pending"`
	Errors    []string `json:"errors,omitempty"`
}

// Poller advances paused runs by querying the batch provider and
// promoting pending cache entries. Polling is idempotent; a run with
// no active jobs yields all-zero counts.
type Poller struct {
	client BatchClient
	cache  CacheStore
	jobs   store.Store
	logger *slog.Logger
}

// NewPoller wires a poller against the configured batch provider.
func NewPoller(client BatchClient, cache CacheStore, jobs store.Store, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, cache: cache, jobs: jobs, logger: logger}
}

// PollRun checks every active batch job of the run. Completed jobs
// have their results matched by custom ID to cache keys; terminal
// failures mark every key failed. Provider or model mismatches are
// recorded as errors without aborting the pass.
func (p *Poller) PollRun(ctx context.Context, runID string) (*PollResult, error) {
	keys, err := p.jobs.ListKeys(ctx, runID, store.BatchJobPrefix)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}

	result := &PollResult{}
	for _, key := range keys {
		var job BatchJob
		if err := p.jobs.GetDoc(ctx, runID, key, &job); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("load %s: %v", key, err))
			continue
		}
		if !job.Status.Active() {
			continue
		}
		if job.Provider != p.client.Provider() {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"batch %s was submitted via %s but the configured provider is %s",
				job.BatchID, job.Provider, p.client.Provider()))
			continue
		}
		if job.Model != p.client.Model() {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"batch %s was submitted for model %s but the configured model is %s",
				job.BatchID, job.Model, p.client.Model()))
			continue
		}

		status, err := p.client.BatchState(ctx, job.BatchID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("query batch %s: %v", job.BatchID, err))
			continue
		}

		switch status {
		case BatchCompleted:
			if err := p.resolve(ctx, runID, &job); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("resolve batch %s: %v", job.BatchID, err))
				continue
			}
			result.Completed++
		case BatchFailed, BatchCancelled, BatchExpired:
			if err := p.fail(ctx, runID, &job, status); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("fail batch %s: %v", job.BatchID, err))
				continue
			}
			result.Failed++
		default:
			if status != job.Status {
				job.Status = status
				if err := p.jobs.PutDoc(ctx, runID, jobKey(job.BatchID), job); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("update batch %s: %v", job.BatchID, err))
					continue
				}
			}
			result.Pending++
		}
	}

	p.logger.Info("poll pass finished",
		"run_id", runID,
		"completed", result.Completed,
		"failed", result.Failed,
		"pending", result.Pending,
		"errors", len(result.Errors))
	return result, nil
}

// resolve fetches a completed job's results and promotes each cache
// key to completed or failed.
func (p *Poller) resolve(ctx context.Context, runID string, job *BatchJob) error {
	results, err := p.client.BatchResults(ctx, job.BatchID)
	if err != nil {
		return err
	}
	byID := make(map[string]BatchResult, len(results))
	for _, r := range results {
		byID[r.CustomID] = r
	}

	now := time.Now().UTC()
	for _, key := range job.CacheKeys {
		entry := CacheEntry{Model: job.Model, BatchID: job.BatchID, UpdatedAt: now}
		r, ok := byID[key]
		switch {
		case !ok:
			entry.Status = CacheFailed
			entry.Error = "no result for custom id"
		case r.Err != "":
			entry.Status = CacheFailed
			entry.Error = r.Err
		default:
			entry.Status = CacheCompleted
			entry.Response = r.Response
		}
		if err := p.cache.Set(ctx, runID, key, entry); err != nil {
			return err
		}
	}

	job.Status = BatchCompleted
	job.CompletedAt = &now
	return p.jobs.PutDoc(ctx, runID, jobKey(job.BatchID), *job)
}

// fail marks every cache key of a terminally failed job.
func (p *Poller) fail(ctx context.Context, runID string, job *BatchJob, status BatchStatus) error {
	now := time.Now().UTC()
	for _, key := range job.CacheKeys {
		if err := p.cache.Set(ctx, runID, key, CacheEntry{
			Status:    CacheFailed,
			BatchID:   job.BatchID,
			Model:     job.Model,
			Error:     "batch " + string(status),
			UpdatedAt: now,
		}); err != nil {
			return err
		}
	}
	job.Status = status
	job.CompletedAt = &now
	return p.jobs.PutDoc(ctx, runID, jobKey(job.BatchID), *job)
}
