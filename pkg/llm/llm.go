// Package llm provides structured LLM completion with transparent
// caching and count-based or token-aware batching over sync and
// asynchronous batch providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProvider is returned when a completion is requested but no
	// provider is configured.
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrBatchUnsupported is returned when batch submission is
	// requested from a sync-only provider.
	ErrBatchUnsupported = errors.New("provider does not support batch submission")
)

// ResponseSchema names and describes the JSON shape a completion must
// return. The name participates in the cache key.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// Group is a unit of related items sharing optional content (for
// example findings from one source file, with the file body as
// content).
type Group struct {
	ID      string
	Content string
	Items   []any
}

// PromptBuilder renders a prompt from a batch's flattened items and
// the shared content, if any.
type PromptBuilder func(items []any, sharedContent string) (string, error)

// BatchingMode selects how groups are packed into provider calls.
type BatchingMode string

const (
	// CountBased flattens all items and chunks them by batch size.
	CountBased BatchingMode = "COUNT_BASED"
	// ExtendedContext keeps groups intact and bin-packs them by token
	// estimate.
	ExtendedContext BatchingMode = "EXTENDED_CONTEXT"
)

// SkipReason explains why an item was excluded from every batch.
type SkipReason string

const (
	SkipOversized      SkipReason = "OVERSIZED"
	SkipMissingContent SkipReason = "MISSING_CONTENT"
)

// SkippedItem pairs an excluded item with its reason.
type SkippedItem struct {
	Item   any        `json:"item"`
	Reason SkipReason `json:"reason"`
}

// CompletionResult carries one structured response per executed batch,
// in batch execution order, plus the flattened skipped items.
type CompletionResult struct {
	Responses []json.RawMessage
	Skipped   []SkippedItem
}

// Client is a synchronous structured-output provider.
type Client interface {
	// InvokeStructured sends one prompt and returns the structured
	// response conforming to the schema.
	InvokeStructured(ctx context.Context, prompt string, schema ResponseSchema) (json.RawMessage, error)
	// Provider names the backing service, e.g. "anthropic".
	Provider() string
	// Model names the concrete model identifier.
	Model() string
	// ContextWindow is the model's total token window.
	ContextWindow() int
}

// BatchRequest is one prompt inside an asynchronous submission. The
// custom ID is the cache key the response will be stored under.
type BatchRequest struct {
	CustomID string
	Prompt   string
	Schema   ResponseSchema
}

// BatchStatus is the lifecycle of an asynchronous submission.
type BatchStatus string

const (
	BatchSubmitted  BatchStatus = "submitted"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
	BatchExpired    BatchStatus = "expired"
)

// Active reports whether the submission may still produce results.
func (s BatchStatus) Active() bool {
	return s == BatchSubmitted || s == BatchInProgress
}

// BatchResult is one per-request outcome of a finished submission.
type BatchResult struct {
	CustomID string
	Response json.RawMessage
	Err      string
}

// BatchClient is a provider supporting asynchronous batch submission.
type BatchClient interface {
	Client
	// SubmitBatch sends all requests as one submission and returns
	// the provider's batch ID.
	SubmitBatch(ctx context.Context, reqs []BatchRequest) (string, error)
	// BatchState reports the submission's current status.
	BatchState(ctx context.Context, batchID string) (BatchStatus, error)
	// BatchResults fetches per-request outcomes of a finished
	// submission.
	BatchResults(ctx context.Context, batchID string) ([]BatchResult, error)
}

// PendingBatch reports that completions were submitted asynchronously
// and the run must pause until the provider finishes.
type PendingBatch struct {
	RunID    string
	BatchIDs []string
}

func (p *PendingBatch) Error() string {
	return fmt.Sprintf("run %s: awaiting %d batch submission(s): %s",
		p.RunID, len(p.BatchIDs), strings.Join(p.BatchIDs, ", "))
}

// AsPendingBatch unwraps a PendingBatch from an error chain.
func AsPendingBatch(err error) (*PendingBatch, bool) {
	var p *PendingBatch
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}
