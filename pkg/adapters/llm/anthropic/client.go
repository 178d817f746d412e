package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/ports"
)

const defaultModel = "claude-sonnet-4-20250514"

// Client implements ports.LLMClient against the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	logger *zap.Logger
}

// NewClient creates an Anthropic LLM client.
func NewClient(apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}, nil
}

// GenerateCompletion sends the conversation and returns the first text
// block of the response.
func (c *Client) GenerateCompletion(ctx context.Context, req *ports.LLMRequest) (*ports.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var content string
	for _, block := range message.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}

	c.logger.Debug("completion generated",
		zap.String("model", string(message.Model)),
		zap.String("stop_reason", string(message.StopReason)),
		zap.Int64("input_tokens", message.Usage.InputTokens),
		zap.Int64("output_tokens", message.Usage.OutputTokens))

	return &ports.LLMResponse{
		Content:      content,
		Model:        string(message.Model),
		StopReason:   string(message.StopReason),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}
