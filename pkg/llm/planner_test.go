package llm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

func TestCountBasedChunks(t *testing.T) {
	groups := []Group{
		{ID: "a", Items: items(30)},
		{ID: "b", Items: items(45)},
	}
	batches, skipped := PlanBatches(groups, CountBased, PlannerConfig{BatchSize: 50})
	assert.Empty(t, skipped)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Items(), 50)
	assert.Len(t, batches[1].Items(), 25)
	// Groups are not preserved: one synthetic group per chunk.
	assert.Len(t, batches[0].Groups, 1)
	assert.Empty(t, batches[0].SharedContent())
}

func TestCountBasedDefaultBatchSize(t *testing.T) {
	batches, _ := PlanBatches([]Group{{Items: items(51)}}, CountBased, PlannerConfig{})
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Items(), DefaultBatchSize)
}

func TestCountBasedEmpty(t *testing.T) {
	batches, skipped := PlanBatches(nil, CountBased, PlannerConfig{})
	assert.Empty(t, batches)
	assert.Empty(t, skipped)
}

func TestExtendedContextOversizedGroupSkipsEveryItem(t *testing.T) {
	big := Group{ID: "big", Content: strings.Repeat("x", 4000), Items: items(3)}
	batches, skipped := PlanBatches([]Group{big}, ExtendedContext, PlannerConfig{
		MaxPayloadTokens: 500,
		TokensPerItem:    100,
	})
	assert.Empty(t, batches)
	require.Len(t, skipped, 3)
	for _, s := range skipped {
		assert.Equal(t, SkipOversized, s.Reason)
	}
}

func TestExtendedContextMissingContent(t *testing.T) {
	groups := []Group{
		{ID: "ok", Content: "short body", Items: items(2)},
		{ID: "empty", Items: items(2)},
	}
	batches, skipped := PlanBatches(groups, ExtendedContext, PlannerConfig{
		MaxPayloadTokens: 10_000,
	})
	require.Len(t, batches, 1)
	require.Len(t, skipped, 2)
	for _, s := range skipped {
		assert.Equal(t, SkipMissingContent, s.Reason)
	}
}

func TestExtendedContextPacksMultipleGroups(t *testing.T) {
	groups := []Group{
		{ID: "a", Content: strings.Repeat("a", 400), Items: items(1)}, // 100 + 150
		{ID: "b", Content: strings.Repeat("b", 400), Items: items(1)},
		{ID: "c", Content: strings.Repeat("c", 400), Items: items(1)},
	}
	batches, skipped := PlanBatches(groups, ExtendedContext, PlannerConfig{
		MaxPayloadTokens: 520,
	})
	assert.Empty(t, skipped)
	// 250 tokens each: two fit per batch.
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Groups, 2)
	assert.Len(t, batches[1].Groups, 1)
}

func TestExtendedContextDeterministic(t *testing.T) {
	groups := []Group{
		{ID: "a", Content: strings.Repeat("a", 100), Items: items(2)},
		{ID: "b", Content: strings.Repeat("b", 800), Items: items(1)},
		{ID: "c", Content: strings.Repeat("c", 100), Items: items(2)},
	}
	cfg := PlannerConfig{MaxPayloadTokens: 1000}
	first, _ := PlanBatches(groups, ExtendedContext, cfg)
	second, _ := PlanBatches(groups, ExtendedContext, cfg)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].EstimatedTokens, second[i].EstimatedTokens)
		assert.Equal(t, len(first[i].Groups), len(second[i].Groups))
	}
}

func TestExtendedContextProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	genGroups := gen.SliceOfN(8, gen.IntRange(0, 3000)).Map(func(sizes []int) []Group {
		groups := make([]Group, len(sizes))
		for i, n := range sizes {
			groups[i] = Group{
				ID:      fmt.Sprintf("g%d", i),
				Content: strings.Repeat("x", n),
				Items:   items(1 + i%3),
			}
		}
		return groups
	})

	const maxPayload = 600

	properties.Property("every batch fits the payload cap", prop.ForAll(
		func(groups []Group) bool {
			batches, _ := PlanBatches(groups, ExtendedContext, PlannerConfig{MaxPayloadTokens: maxPayload})
			for _, b := range batches {
				if b.EstimatedTokens > maxPayload {
					return false
				}
			}
			return true
		},
		genGroups,
	))

	properties.Property("every item lands in exactly one batch or in skipped", prop.ForAll(
		func(groups []Group) bool {
			total := 0
			for _, g := range groups {
				total += len(g.Items)
			}
			batches, skipped := PlanBatches(groups, ExtendedContext, PlannerConfig{MaxPayloadTokens: maxPayload})
			placed := len(skipped)
			for _, b := range batches {
				placed += len(b.Items())
			}
			return placed == total
		},
		genGroups,
	))

	properties.TestingRun(t)
}
