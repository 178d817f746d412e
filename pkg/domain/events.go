package domain

import "time"

// EventType identifies an execution lifecycle event.
type EventType string

const (
	EventTypeExecutionSubmitted EventType = "execution.submitted"
	EventTypeExecutionStarted   EventType = "execution.started"
	EventTypeExecutionCompleted EventType = "execution.completed"
	EventTypeExecutionFailed    EventType = "execution.failed"
	EventTypeExecutionCancelled EventType = "execution.cancelled"
	EventTypeNodeStarted        EventType = "node.started"
	EventTypeNodeCompleted      EventType = "node.completed"
	EventTypeNodeFailed         EventType = "node.failed"
)

// Event is published on the event bus for each lifecycle transition.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}
