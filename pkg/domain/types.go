package domain

import (
	"time"
)

// PrimitiveType identifies one of the five step categories a node can have.
type PrimitiveType string

const (
	PrimitiveTrigger    PrimitiveType = "trigger"
	PrimitiveAction     PrimitiveType = "action"
	PrimitiveConnection PrimitiveType = "connection"
	PrimitiveCondition  PrimitiveType = "condition"
	PrimitiveData       PrimitiveType = "data"
)

// PrimitiveTypes lists every registered primitive category.
var PrimitiveTypes = []PrimitiveType{
	PrimitiveTrigger,
	PrimitiveAction,
	PrimitiveConnection,
	PrimitiveCondition,
	PrimitiveData,
}

// Node is a single step in a workflow graph. Config carries the
// subtype selector and the static configuration overlaid beneath
// upstream outputs at execution time.
type Node struct {
	ID      string                 `json:"id"`
	Type    PrimitiveType          `json:"type"`
	Config  map[string]interface{} `json:"config"`
	Display map[string]interface{} `json:"display,omitempty"`
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a user-authored workflow definition. It is read-only during
// planning and execution.
type Graph struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Nodes       []Node                 `json:"nodes"`
	Edges       []Edge                 `json:"edges"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Node lookup by ID. Returns nil when the ID is unknown.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// ExecutionStatus is the lifecycle state of an execution or node.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NodeResult is the outcome of one executed node. The collected map of
// node results forms the execution record's OutputData and feeds
// downstream input resolution.
type NodeResult struct {
	NodeID    string                 `json:"node_id"`
	Status    ExecutionStatus        `json:"status"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ExecutionRecord is the durable record of one graph run. Once Status
// is terminal the record is immutable except for reads.
type ExecutionRecord struct {
	ExecutionID          string                 `json:"execution_id"`
	WorkflowID           string                 `json:"workflow_id,omitempty"`
	UserID               string                 `json:"user_id"`
	Status               ExecutionStatus        `json:"status"`
	InputData            map[string]interface{} `json:"input_data,omitempty"`
	OutputData           map[string]NodeResult  `json:"output_data,omitempty"`
	ErrorMessage         string                 `json:"error_message,omitempty"`
	StartedAt            time.Time              `json:"started_at"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
	ExecutionTimeSeconds float64                `json:"execution_time_seconds,omitempty"`
}

// ExecutionContext is the ephemeral per-run state passed to executors.
// It is owned by exactly one in-flight execution and discarded after
// completion.
type ExecutionContext struct {
	ExecutionID     string
	UserID          string
	WorkflowID      string
	NodeID          string
	StartTime       time.Time
	PreviousOutputs map[string]map[string]interface{}
	Metadata        map[string]interface{}
}

// NewExecutionContext creates a context for one run.
func NewExecutionContext(executionID, userID, workflowID string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID:     executionID,
		UserID:          userID,
		WorkflowID:      workflowID,
		StartTime:       time.Now(),
		PreviousOutputs: make(map[string]map[string]interface{}),
		Metadata:        make(map[string]interface{}),
	}
}

// Elapsed returns the wall-clock time since the context was created.
func (c *ExecutionContext) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// ResultMetadata annotates a wrapped primitive result.
type ResultMetadata struct {
	PrimitiveType PrimitiveType `json:"primitive_type"`
	ExecutionTime float64       `json:"execution_time"`
	NodeID        string        `json:"node_id,omitempty"`
}

// Result is the uniform wrapper the registry returns for every
// primitive execution, success or failure.
type Result struct {
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata ResultMetadata         `json:"metadata"`
}

// ExecutionStats aggregates a user's executions by status. SuccessRate
// is completed/(completed+failed) and 0 when nothing finished yet.
type ExecutionStats struct {
	Total       int     `json:"total_executions"`
	Pending     int     `json:"pending_executions"`
	Running     int     `json:"running_executions"`
	Completed   int     `json:"completed_executions"`
	Failed      int     `json:"failed_executions"`
	SuccessRate float64 `json:"success_rate"`
}

// StatusEvent is one append-only entry in an execution's history.
type StatusEvent struct {
	ExecutionID string                 `json:"execution_id"`
	Status      ExecutionStatus        `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
