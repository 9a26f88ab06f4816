package llm

import "sort"

// DefaultBatchSize is the COUNT_BASED chunk size.
const DefaultBatchSize = 50

// PlannedBatch is one provider call's worth of groups.
type PlannedBatch struct {
	Groups          []Group
	EstimatedTokens int
}

// Items flattens the batch's items preserving group order.
func (b PlannedBatch) Items() []any {
	var out []any
	for _, g := range b.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// SharedContent concatenates the batch's group contents in order.
func (b PlannedBatch) SharedContent() string {
	var sb []byte
	for _, g := range b.Groups {
		if g.Content == "" {
			continue
		}
		if len(sb) > 0 {
			sb = append(sb, '\n', '\n')
		}
		sb = append(sb, g.Content...)
	}
	return string(sb)
}

// PlannerConfig tunes batch planning.
type PlannerConfig struct {
	BatchSize        int // COUNT_BASED chunk size
	MaxPayloadTokens int
	TokensPerItem    int
}

func (c PlannerConfig) withDefaults() PlannerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TokensPerItem <= 0 {
		c.TokensPerItem = DefaultTokensPerItem
	}
	return c
}

// PlanBatches packs groups into batches for the given mode. Every
// input item lands in exactly one batch or in the skipped list.
// Planning is deterministic for identical inputs.
func PlanBatches(groups []Group, mode BatchingMode, cfg PlannerConfig) ([]PlannedBatch, []SkippedItem) {
	cfg = cfg.withDefaults()
	if mode == ExtendedContext {
		return planExtendedContext(groups, cfg)
	}
	return planCountBased(groups, cfg)
}

// planCountBased flattens all items across groups and chunks them by
// batch size; one synthetic group per chunk, no shared content.
func planCountBased(groups []Group, cfg PlannerConfig) ([]PlannedBatch, []SkippedItem) {
	var items []any
	for _, g := range groups {
		items = append(items, g.Items...)
	}
	var batches []PlannedBatch
	for start := 0; start < len(items); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		batches = append(batches, PlannedBatch{
			Groups:          []Group{{Items: chunk}},
			EstimatedTokens: len(chunk) * cfg.TokensPerItem,
		})
	}
	return batches, nil
}

// planExtendedContext keeps groups intact and bin-packs them
// first-fit-decreasing by token estimate. Groups over the payload cap
// skip every item as OVERSIZED; groups without content skip as
// MISSING_CONTENT.
func planExtendedContext(groups []Group, cfg PlannerConfig) ([]PlannedBatch, []SkippedItem) {
	var skipped []SkippedItem
	type sized struct {
		group  Group
		tokens int
		index  int
	}
	var eligible []sized
	for i, g := range groups {
		if g.Content == "" {
			for _, it := range g.Items {
				skipped = append(skipped, SkippedItem{Item: it, Reason: SkipMissingContent})
			}
			continue
		}
		t := groupTokens(g, cfg.TokensPerItem)
		if cfg.MaxPayloadTokens > 0 && t > cfg.MaxPayloadTokens {
			for _, it := range g.Items {
				skipped = append(skipped, SkippedItem{Item: it, Reason: SkipOversized})
			}
			continue
		}
		eligible = append(eligible, sized{group: g, tokens: t, index: i})
	}

	// First-fit-decreasing; ties break on input order for determinism.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].tokens != eligible[j].tokens {
			return eligible[i].tokens > eligible[j].tokens
		}
		return eligible[i].index < eligible[j].index
	})

	var batches []PlannedBatch
	for _, e := range eligible {
		placed := false
		for bi := range batches {
			if cfg.MaxPayloadTokens <= 0 || batches[bi].EstimatedTokens+e.tokens <= cfg.MaxPayloadTokens {
				batches[bi].Groups = append(batches[bi].Groups, e.group)
				batches[bi].EstimatedTokens += e.tokens
				placed = true
				break
			}
		}
		if !placed {
			batches = append(batches, PlannedBatch{
				Groups:          []Group{e.group},
				EstimatedTokens: e.tokens,
			})
		}
	}
	return batches, skipped
}
