package llm

import "strings"

const (
	// DefaultTokensPerItem is the per-item allowance added to a
	// group's shared-content estimate.
	DefaultTokensPerItem = 150

	// outputAllowance reserves tokens for the model's response when
	// deriving the maximum request payload.
	outputAllowance = 8192

	defaultContextWindow = 128_000
)

// EstimateTokens approximates the token count of a string at four
// characters per token.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// ContextWindowFor returns the context window for a known model
// identifier, falling back to a conservative default.
func ContextWindowFor(model string) int {
	switch {
	case strings.HasPrefix(model, "claude"):
		return 200_000
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return 128_000
	default:
		return defaultContextWindow
	}
}

// MaxPayloadTokens derives the largest request payload allowed for a
// context window after reserving the output allowance.
func MaxPayloadTokens(contextWindow int) int {
	if contextWindow <= outputAllowance {
		return 0
	}
	return contextWindow - outputAllowance
}

// groupTokens estimates one group's payload: shared content plus a
// fixed allowance per item.
func groupTokens(g Group, tokensPerItem int) int {
	return EstimateTokens(g.Content) + len(g.Items)*tokensPerItem
}
