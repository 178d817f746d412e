package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/internal/application/planner"
	"github.com/pentaflow/pentaflow/internal/application/primitives"
	"github.com/pentaflow/pentaflow/pkg/domain"
	"github.com/pentaflow/pentaflow/pkg/ports"
)

// ExecutionPath selects how a run is orchestrated. The path is chosen
// once per execution and never duplicated across classes.
type ExecutionPath string

const (
	PathDurable ExecutionPath = "durable"
	PathLocal   ExecutionPath = "local"
)

// ExecutionHandle is returned synchronously from Submit while the run
// proceeds in the background.
type ExecutionHandle struct {
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
	Path        ExecutionPath          `json:"path"`
}

// Config wires the engine's collaborators. Durable and Agents may be
// nil: the engine then always runs locally and never delegates.
type Config struct {
	Registry *primitives.Registry
	Store    ports.ExecutionStore
	Events   ports.EventBus
	Durable  ports.DurableEngine
	Agents   ports.AgentCoordinator
	Metrics  ports.MetricsCollector
	Logger   *zap.Logger

	// GraphTimeout bounds one local-path run end to end. The durable
	// path carries its own per-node timeouts and retries.
	GraphTimeout time.Duration
}

// Engine drives executions end to end: validation, path selection,
// node scheduling, delegation, status persistence and events.
type Engine struct {
	registry *primitives.Registry
	store    ports.ExecutionStore
	events   ports.EventBus
	durable  ports.DurableEngine
	agents   ports.AgentCoordinator
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	graphTimeout time.Duration

	executions sync.Map // map[string]*execution
	active     int64
	activeMu   sync.Mutex
	wg         sync.WaitGroup
}

// execution tracks one in-flight run.
type execution struct {
	id        string
	cancel    context.CancelFunc
	mu        sync.Mutex
	cancelled bool
}

// New creates an engine from its collaborators.
func New(cfg Config) *Engine {
	if cfg.GraphTimeout <= 0 {
		cfg.GraphTimeout = time.Hour
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	return &Engine{
		registry:     cfg.Registry,
		store:        cfg.Store,
		events:       cfg.Events,
		durable:      cfg.Durable,
		agents:       cfg.Agents,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		graphTimeout: cfg.GraphTimeout,
	}
}

// Submit validates the graph and starts one execution. Validation
// failures are written as a failed record and returned as a typed
// error before any node runs, so callers can always distinguish
// "graph rejected" from "graph ran and a node failed".
func (e *Engine) Submit(ctx context.Context, graph *domain.Graph, userID string, inputs map[string]interface{}) (*ExecutionHandle, error) {
	executionID := uuid.New().String()

	plan, err := e.validate(graph)
	if err != nil {
		e.logger.Warn("graph rejected",
			zap.String("execution_id", executionID),
			zap.String("user_id", userID),
			zap.Error(err))
		e.metrics.RecordExecutionSubmitted(string(domain.StatusFailed))

		record := &domain.ExecutionRecord{
			ExecutionID: executionID,
			WorkflowID:  graphWorkflowID(graph),
			UserID:      userID,
			Status:      domain.StatusPending,
			InputData:   inputs,
			StartedAt:   time.Now(),
		}
		if _, storeErr := e.store.Create(ctx, record); storeErr != nil {
			e.logger.Error("failed to persist rejected execution",
				zap.String("execution_id", executionID), zap.Error(storeErr))
		}
		if _, updErr := e.store.Update(ctx, executionID, domain.StatusFailed, nil, err.Error(), 0); updErr != nil {
			e.logger.Error("failed to finalize rejected execution",
				zap.String("execution_id", executionID), zap.Error(updErr))
		}
		return nil, err
	}

	record := &domain.ExecutionRecord{
		ExecutionID: executionID,
		WorkflowID:  graphWorkflowID(graph),
		UserID:      userID,
		Status:      domain.StatusPending,
		InputData:   inputs,
		StartedAt:   time.Now(),
	}
	if _, err := e.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	execCtx := domain.NewExecutionContext(executionID, userID, record.WorkflowID)
	if inputs != nil {
		execCtx.Metadata["inputs"] = inputs
	}

	runCtx, cancel := context.WithTimeout(context.Background(), e.graphTimeout)
	exec := &execution{id: executionID, cancel: cancel}
	e.executions.Store(executionID, exec)
	e.trackActive(1)

	e.publishEvent(ctx, domain.EventTypeExecutionSubmitted, executionID, "", map[string]interface{}{
		"workflow_id": record.WorkflowID,
		"node_count":  len(graph.Nodes),
	})
	e.metrics.RecordExecutionSubmitted(string(domain.StatusPending))

	path := e.choosePath(ctx)
	e.logger.Info("execution submitted",
		zap.String("execution_id", executionID),
		zap.String("user_id", userID),
		zap.String("path", string(path)),
		zap.Int("nodes", len(graph.Nodes)))

	e.wg.Add(1)
	go e.run(runCtx, exec, graph, plan, execCtx, path)

	return &ExecutionHandle{ExecutionID: executionID, Status: domain.StatusPending, Path: path}, nil
}

// Status returns the owner-scoped execution record.
func (e *Engine) Status(ctx context.Context, executionID, userID string) (*domain.ExecutionRecord, error) {
	return e.store.Get(ctx, executionID, userID)
}

// History returns the owner-scoped status history.
func (e *Engine) History(ctx context.Context, executionID, userID string) ([]domain.StatusEvent, error) {
	return e.store.History(ctx, executionID, userID)
}

// List returns the owner's executions, newest first.
func (e *Engine) List(ctx context.Context, userID string, offset, limit int) ([]*domain.ExecutionRecord, error) {
	return e.store.List(ctx, userID, offset, limit)
}

// Stats aggregates the owner's executions by status.
func (e *Engine) Stats(ctx context.Context, userID string) (*domain.ExecutionStats, error) {
	return e.store.Stats(ctx, userID)
}

// Cancel requests cooperative cancellation of a running execution.
// The run stops scheduling nodes at the next check and finalizes as
// failed with a Cancelled reason.
func (e *Engine) Cancel(ctx context.Context, executionID, userID string) error {
	record, err := e.store.Get(ctx, executionID, userID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return domain.NewError(domain.ErrCodeCancelled, "execution already in terminal state: %s", record.Status)
	}

	val, ok := e.executions.Load(executionID)
	if !ok {
		return domain.NewError(domain.ErrCodeNotFound, "execution not in flight: %s", executionID)
	}
	exec := val.(*execution)
	exec.mu.Lock()
	exec.cancelled = true
	exec.mu.Unlock()
	exec.cancel()

	if e.durable != nil {
		if err := e.durable.Cancel(ctx, executionID); err != nil {
			e.logger.Debug("durable cancel signal failed",
				zap.String("execution_id", executionID), zap.Error(err))
		}
	}

	e.logger.Info("execution cancellation requested",
		zap.String("execution_id", executionID),
		zap.String("user_id", userID))
	return nil
}

// Shutdown cancels all in-flight executions and waits for their
// finalization, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("shutting down engine")

	e.executions.Range(func(_, value interface{}) bool {
		exec := value.(*execution)
		exec.mu.Lock()
		exec.cancelled = true
		exec.mu.Unlock()
		exec.cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timeout")
	}
}

// validate runs registry validation then planning, fail-fast.
func (e *Engine) validate(graph *domain.Graph) (*planner.ExecutionPlan, error) {
	if graph == nil || len(graph.Nodes) == 0 {
		return nil, domain.NewError(domain.ErrCodeInvalidConfig, "graph must have at least one node")
	}
	plan, err := planner.Plan(graph)
	if err != nil {
		return nil, err
	}
	if err := e.registry.ValidateGraph(graph); err != nil {
		return nil, err
	}
	return plan, nil
}

// choosePath picks durable orchestration when the collaborator is
// configured and reachable; connectivity failures degrade to local.
func (e *Engine) choosePath(ctx context.Context) ExecutionPath {
	if e.durable != nil && e.durable.IsAvailable(ctx) {
		return PathDurable
	}
	return PathLocal
}

func (e *Engine) trackActive(delta int64) {
	e.activeMu.Lock()
	e.active += delta
	count := e.active
	e.activeMu.Unlock()
	e.metrics.SetActiveExecutions(int(count))
}

func (e *Engine) publishEvent(ctx context.Context, eventType domain.EventType, executionID, nodeID string, data map[string]interface{}) {
	if e.events == nil {
		return
	}
	event := domain.Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Timestamp:   time.Now(),
		Data:        data,
	}
	if err := e.events.Publish(ctx, EventTopic, event); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("event_type", string(eventType)),
			zap.String("execution_id", executionID),
			zap.Error(err))
	}
}

// EventTopic is the bus topic carrying execution lifecycle events.
const EventTopic = "execution.events"

// nopMetrics is the default collector when none is configured.
type nopMetrics struct{}

func (nopMetrics) RecordExecutionSubmitted(string) {}
func (nopMetrics) RecordExecutionCompleted(string, string, time.Duration) {}
func (nopMetrics) RecordNodeExecuted(string, string, time.Duration) {}
func (nopMetrics) RecordAgentDelegation(string) {}
func (nopMetrics) SetActiveExecutions(int) {}

func graphWorkflowID(graph *domain.Graph) string {
	if graph == nil {
		return ""
	}
	return graph.ID
}
