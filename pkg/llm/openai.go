package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIClient implements the sync Client over the Chat Completions
// API with a JSON-schema response format. It does not support batch
// submission.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client from an API key.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Provider() string   { return "openai" }
func (c *OpenAIClient) Model() string      { return c.model }
func (c *OpenAIClient) ContextWindow() int { return ContextWindowFor(c.model) }

// InvokeStructured sends one prompt constrained to the response
// schema and returns the raw JSON content.
func (c *OpenAIClient) InvokeStructured(ctx context.Context, prompt string, schema ResponseSchema) (json.RawMessage, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schema.Name,
					Schema: schema.Schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, errors.New("openai: empty message content")
	}
	if !json.Valid([]byte(content)) {
		return nil, errors.New("openai: response is not valid JSON")
	}
	return json.RawMessage(content), nil
}
