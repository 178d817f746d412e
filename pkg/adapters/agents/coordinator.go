package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/ports"
)

const systemPrompt = `You are a workflow execution agent inside an automation engine.
You receive one task from a workflow node together with its input context.
Produce the task result directly, with no preamble and no commentary.`

// Coordinator implements ports.AgentCoordinator on top of an LLM
// client. Each delegated task becomes a single completion request;
// there is no retry here, callers fall back to the plain executor on
// any error.
type Coordinator struct {
	client ports.LLMClient
	model  string
	logger *zap.Logger
}

// NewCoordinator creates an agent coordinator. A nil client yields a
// coordinator that reports unavailable.
func NewCoordinator(client ports.LLMClient, model string, logger *zap.Logger) *Coordinator {
	return &Coordinator{client: client, model: model, logger: logger}
}

// IsAvailable reports whether delegation is possible.
func (c *Coordinator) IsAvailable(_ context.Context) bool {
	return c != nil && c.client != nil
}

// Delegate runs one task through the LLM and wraps the answer.
func (c *Coordinator) Delegate(ctx context.Context, task ports.AgentTask) (*ports.AgentResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("agent coordinator has no LLM client")
	}

	resp, err := c.client.GenerateCompletion(ctx, &ports.LLMRequest{
		Model:     c.model,
		System:    systemPrompt,
		Messages:  []ports.LLMMessage{{Role: "user", Content: buildPrompt(task)}},
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("delegation failed: %w", err)
	}

	c.logger.Debug("task delegated",
		zap.String("task_type", task.TaskType),
		zap.String("model", resp.Model),
		zap.Int("output_tokens", resp.OutputTokens))

	confidence := 1.0
	if resp.StopReason == "max_tokens" {
		confidence = 0.5
	}
	return &ports.AgentResult{
		Response:   resp.Content,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"model":         resp.Model,
			"stop_reason":   resp.StopReason,
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
		},
	}, nil
}

func buildPrompt(task ports.AgentTask) string {
	var b strings.Builder
	b.WriteString("Task type: ")
	b.WriteString(task.TaskType)
	b.WriteString("\n\n")
	b.WriteString(task.Prompt)
	if len(task.Context) > 0 {
		if data, err := json.Marshal(task.Context); err == nil {
			b.WriteString("\n\nInput context (JSON):\n")
			b.Write(data)
		}
	}
	return b.String()
}
