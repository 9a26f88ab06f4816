package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicClient implements Client and BatchClient over the Anthropic
// Messages API. Structured output is obtained by forcing a single tool
// whose input schema is the response schema.
type AnthropicClient struct {
	client sdk.Client
	model  string
}

// NewAnthropicClient builds a client from an API key.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (c *AnthropicClient) Provider() string   { return "anthropic" }
func (c *AnthropicClient) Model() string      { return c.model }
func (c *AnthropicClient) ContextWindow() int { return ContextWindowFor(c.model) }

// messageParams builds the tool-forced request for one prompt.
func (c *AnthropicClient) messageParams(prompt string, schema ResponseSchema) sdk.MessageNewParams {
	tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: toAnyMap(schema.Schema)}, schema.Name)
	if tool.OfTool != nil {
		tool.OfTool.Description = sdk.String("Record the structured analysis result.")
	}
	return sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(outputAllowance),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
		Tools: []sdk.ToolUnionParam{tool},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: schema.Name},
		},
	}
}

// InvokeStructured sends one prompt and extracts the forced tool call
// input as the structured response.
func (c *AnthropicClient) InvokeStructured(ctx context.Context, prompt string, schema ResponseSchema) (json.RawMessage, error) {
	msg, err := c.client.Messages.New(ctx, c.messageParams(prompt, schema))
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return extractToolInput(msg, schema.Name)
}

// SubmitBatch creates one Message Batch with the cache keys as custom
// IDs.
func (c *AnthropicClient) SubmitBatch(ctx context.Context, reqs []BatchRequest) (string, error) {
	requests := make([]sdk.MessageBatchNewParamsRequest, 0, len(reqs))
	for _, r := range reqs {
		p := c.messageParams(r.Prompt, r.Schema)
		requests = append(requests, sdk.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params: sdk.MessageBatchNewParamsRequestParams{
				Model:      p.Model,
				MaxTokens:  p.MaxTokens,
				Messages:   p.Messages,
				Tools:      p.Tools,
				ToolChoice: p.ToolChoice,
			},
		})
	}
	batch, err := c.client.Messages.Batches.New(ctx, sdk.MessageBatchNewParams{Requests: requests})
	if err != nil {
		return "", fmt.Errorf("anthropic batches.new: %w", err)
	}
	return batch.ID, nil
}

// BatchState maps the provider's processing status onto the batch
// lifecycle.
func (c *AnthropicClient) BatchState(ctx context.Context, batchID string) (BatchStatus, error) {
	batch, err := c.client.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("anthropic batches.get: %w", err)
	}
	switch string(batch.ProcessingStatus) {
	case "ended":
		return BatchCompleted, nil
	case "canceling":
		return BatchCancelled, nil
	default:
		return BatchInProgress, nil
	}
}

// BatchResults streams the finished batch's per-request outcomes.
func (c *AnthropicClient) BatchResults(ctx context.Context, batchID string) ([]BatchResult, error) {
	stream := c.client.Messages.Batches.ResultsStreaming(ctx, batchID)
	var out []BatchResult
	for stream.Next() {
		entry := stream.Current()
		res := BatchResult{CustomID: entry.CustomID}
		switch string(entry.Result.Type) {
		case "succeeded":
			msg := entry.Result.Message
			raw, err := extractToolInput(&msg, "")
			if err != nil {
				res.Err = err.Error()
			} else {
				res.Response = raw
			}
		case "errored":
			res.Err = "request errored"
		case "canceled":
			res.Err = "request canceled"
		case "expired":
			res.Err = "request expired"
		default:
			res.Err = fmt.Sprintf("unknown result type %q", entry.Result.Type)
		}
		out = append(out, res)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic batches.results: %w", err)
	}
	return out, nil
}

// extractToolInput pulls the first tool_use block's input. When
// toolName is non-empty the block must match it.
func extractToolInput(msg *sdk.Message, toolName string) (json.RawMessage, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		if toolName != "" && block.Name != toolName {
			continue
		}
		return json.RawMessage(block.Input), nil
	}
	return nil, errors.New("anthropic: response contains no tool_use block")
}

// toAnyMap defends against nil schema maps in tool params.
func toAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}
