package llm

import (
	"fmt"
	"os"
)

// NewClientFromEnv builds the configured provider client, or (nil,
// nil) when no provider is configured so callers can degrade
// gracefully.
//
//   - LLM_PROVIDER: "anthropic" (default when a key is present) or
//     "openai"
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY
//   - WAIVERN_LLM_MODEL: optional model override
func NewClientFromEnv() (Client, error) {
	provider := os.Getenv("LLM_PROVIDER")
	model := os.Getenv("WAIVERN_LLM_MODEL")

	switch provider {
	case "anthropic":
		return NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), model)
	case "openai":
		return NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), model)
	case "":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return NewAnthropicClient(key, model)
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return NewOpenAIClient(key, model)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
