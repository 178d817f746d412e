package ports

import (
	"context"
	"time"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// EventHandler consumes one event from the bus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and subscribes execution lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// ExecutionStore is the sole source of truth for execution records.
// Get, List, History and Stats are scoped by owner: records belonging
// to another user surface as NotFound rather than leaking existence.
type ExecutionStore interface {
	// Create persists a new record and returns its execution ID.
	Create(ctx context.Context, record *domain.ExecutionRecord) (string, error)

	// Update transitions a record. It is idempotent under retry: a
	// second update with the same terminal status is a no-op returning
	// false. CompletedAt is set exactly when the status first becomes
	// terminal.
	Update(ctx context.Context, executionID string, status domain.ExecutionStatus,
		output map[string]domain.NodeResult, errorMessage string, elapsed float64) (bool, error)

	Get(ctx context.Context, executionID, ownerID string) (*domain.ExecutionRecord, error)
	List(ctx context.Context, ownerID string, offset, limit int) ([]*domain.ExecutionRecord, error)
	History(ctx context.Context, executionID, ownerID string) ([]domain.StatusEvent, error)
	Stats(ctx context.Context, ownerID string) (*domain.ExecutionStats, error)
}

// DurableEngine is the external durable-execution collaborator. The
// core depends only on submit-and-await plus status/cancel queries;
// per-node retry and backoff live behind this interface. Connectivity
// failures must degrade to the local path, not fail the execution.
type DurableEngine interface {
	IsAvailable(ctx context.Context) bool
	Execute(ctx context.Context, graph *domain.Graph, execCtx *domain.ExecutionContext) (map[string]domain.NodeResult, error)
	Status(ctx context.Context, executionID string) (domain.ExecutionStatus, error)
	Cancel(ctx context.Context, executionID string) error
}

// AgentTask is a reasoning sub-task delegated to the multi-agent
// coordination collaborator for AI-tagged nodes.
type AgentTask struct {
	TaskType string
	Prompt   string
	Context  map[string]interface{}
}

// AgentResult is the coordinator's answer for one delegated task.
type AgentResult struct {
	Response   string
	Confidence float64
	Metadata   map[string]interface{}
}

// AgentCoordinator delegates AI-flavored node work to a multi-agent
// layer. Delegation is best-effort: callers check IsAvailable, attempt
// Delegate once, and fall back to the plain executor on any error.
type AgentCoordinator interface {
	IsAvailable(ctx context.Context) bool
	Delegate(ctx context.Context, task AgentTask) (*AgentResult, error)
}

// LLMMessage is one turn of an LLM conversation.
type LLMMessage struct {
	Role    string
	Content string
}

// LLMRequest is a completion request to the configured provider.
type LLMRequest struct {
	Model       string
	System      string
	Messages    []LLMMessage
	Temperature float64
	MaxTokens   int
}

// LLMResponse is a completion answer.
type LLMResponse struct {
	Content      string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// LLMClient talks to a language-model provider.
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordExecutionSubmitted(status string)
	RecordExecutionCompleted(status string, path string, duration time.Duration)
	RecordNodeExecuted(primitiveType string, status string, duration time.Duration)
	RecordAgentDelegation(outcome string)
	SetActiveExecutions(count int)
}
