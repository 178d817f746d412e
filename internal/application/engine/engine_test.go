package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/internal/application/primitives"
	eventsmemory "github.com/pentaflow/pentaflow/pkg/adapters/events/memory"
	storememory "github.com/pentaflow/pentaflow/pkg/adapters/store/memory"
	"github.com/pentaflow/pentaflow/pkg/domain"
	"github.com/pentaflow/pentaflow/pkg/ports"
)

func newTestEngine(t *testing.T, durable ports.DurableEngine, agents ports.AgentCoordinator) (*Engine, ports.ExecutionStore) {
	t.Helper()
	store := storememory.NewExecutionStore()
	eng := New(Config{
		Registry:     primitives.NewRegistry(zap.NewNop()),
		Store:        store,
		Events:       eventsmemory.NewEventBus(),
		Durable:      durable,
		Agents:       agents,
		Logger:       zap.NewNop(),
		GraphTimeout: 30 * time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	return eng, store
}

func waitForTerminal(t *testing.T, store ports.ExecutionStore, executionID, userID string) *domain.ExecutionRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, err := store.Get(context.Background(), executionID, userID)
		require.NoError(t, err)
		if record.Status.Terminal() {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("execution did not reach a terminal state")
	return nil
}

func linearGraph() *domain.Graph {
	return &domain.Graph{
		ID:   "wf-orders",
		Name: "order pipeline",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.PrimitiveTrigger, Config: map[string]interface{}{"trigger_type": "manual"}},
			{ID: "check", Type: domain.PrimitiveCondition, Config: map[string]interface{}{"condition_type": "if_else", "condition": "true"}},
			{ID: "notify", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "notification", "message": "done"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "notify"},
		},
	}
}

func TestEngine_SubmitCompletesLinearGraph(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", map[string]interface{}{"order_id": 42})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, handle.Status)
	assert.Equal(t, PathLocal, handle.Path)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Empty(t, record.ErrorMessage)
	require.Len(t, record.OutputData, 3)
	for _, nodeID := range []string{"start", "check", "notify"} {
		result, ok := record.OutputData[nodeID]
		require.True(t, ok, "missing result for node %s", nodeID)
		assert.Equal(t, domain.StatusCompleted, result.Status)
	}
	assert.Greater(t, record.ExecutionTimeSeconds, 0.0)
	require.NotNil(t, record.CompletedAt)
}

func TestEngine_SubmitRejectsCycle(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	graph := linearGraph()
	graph.Edges = append(graph.Edges, domain.Edge{ID: "back", Source: "notify", Target: "start"})

	handle, err := eng.Submit(context.Background(), graph, "alice", nil)
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.Equal(t, domain.ErrCodeCycleDetected, domain.ErrorCodeOf(err))

	// A rejected submission is still recorded, as failed.
	records, err := store.List(context.Background(), "alice", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusFailed, records[0].Status)
	assert.NotEmpty(t, records[0].ErrorMessage)
}

func TestEngine_SubmitRejectsInvalidNodeConfig(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)

	graph := &domain.Graph{
		Nodes: []domain.Node{
			{ID: "a", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "teleport"}},
		},
	}

	_, err := eng.Submit(context.Background(), graph, "alice", nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))

	var typed *domain.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "a", typed.NodeID)
}

func TestEngine_FailFastStopsDownstream(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	graph := &domain.Graph{
		Nodes: []domain.Node{
			{ID: "a", Type: domain.PrimitiveTrigger, Config: map[string]interface{}{"trigger_type": "manual"}},
			// Connection refused makes this node fail at runtime.
			{ID: "b", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "api_call", "url": "http://127.0.0.1:1"}},
			{ID: "c", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "notification"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}

	handle, err := eng.Submit(context.Background(), graph, "alice", nil)
	require.NoError(t, err)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusFailed, record.Status)
	assert.NotEmpty(t, record.ErrorMessage)

	// Completed upstream results are retained; downstream never ran.
	assert.Equal(t, domain.StatusCompleted, record.OutputData["a"].Status)
	assert.Equal(t, domain.StatusFailed, record.OutputData["b"].Status)
	_, ranC := record.OutputData["c"]
	assert.False(t, ranC)
}

func TestEngine_OwnerScoping(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)

	_, err = eng.Status(context.Background(), handle.ExecutionID, "mallory")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.ErrorCodeOf(err))

	err = eng.Cancel(context.Background(), handle.ExecutionID, "mallory")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.ErrorCodeOf(err))
}

func TestEngine_CancelRunningExecution(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	graph := &domain.Graph{
		Nodes: []domain.Node{
			{ID: "slow", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "wait", "duration": 30, "unit": "seconds"}},
		},
	}

	handle, err := eng.Submit(context.Background(), graph, "alice", nil)
	require.NoError(t, err)

	// Let the run start before cancelling.
	require.Eventually(t, func() bool {
		record, err := store.Get(context.Background(), handle.ExecutionID, "alice")
		return err == nil && record.Status == domain.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.Cancel(context.Background(), handle.ExecutionID, "alice"))

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "cancelled")
}

func TestEngine_CancelTerminalExecutionFails(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)
	waitForTerminal(t, store, handle.ExecutionID, "alice")

	err = eng.Cancel(context.Background(), handle.ExecutionID, "alice")
	require.Error(t, err)
}

type fakeDurable struct {
	available bool
	results   map[string]domain.NodeResult
	err       error
	cancelled bool
}

func (f *fakeDurable) IsAvailable(context.Context) bool { return f.available }
func (f *fakeDurable) Execute(context.Context, *domain.Graph, *domain.ExecutionContext) (map[string]domain.NodeResult, error) {
	return f.results, f.err
}
func (f *fakeDurable) Status(context.Context, string) (domain.ExecutionStatus, error) {
	return domain.StatusRunning, nil
}
func (f *fakeDurable) Cancel(context.Context, string) error {
	f.cancelled = true
	return nil
}

func TestEngine_DurablePath(t *testing.T) {
	durable := &fakeDurable{
		available: true,
		results: map[string]domain.NodeResult{
			"start":  {NodeID: "start", Status: domain.StatusCompleted, Output: map[string]interface{}{"triggered": true}},
			"check":  {NodeID: "check", Status: domain.StatusCompleted},
			"notify": {NodeID: "notify", Status: domain.StatusCompleted},
		},
	}
	eng, store := newTestEngine(t, durable, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, PathDurable, handle.Path)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Len(t, record.OutputData, 3)
}

func TestEngine_DurableUnavailableFallsBackToLocal(t *testing.T) {
	// Available at submission, unreachable at execution: the run must
	// complete locally with identical results.
	durable := &fakeDurable{
		available: true,
		err:       domain.NewError(domain.ErrCodeDurableEngineUnavailable, "connection refused"),
	}
	eng, store := newTestEngine(t, durable, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, PathDurable, handle.Path)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Len(t, record.OutputData, 3)
	for _, result := range record.OutputData {
		assert.Equal(t, domain.StatusCompleted, result.Status)
	}
}

func TestEngine_DurableNotConfiguredUsesLocal(t *testing.T) {
	durable := &fakeDurable{available: false}
	eng, store := newTestEngine(t, durable, nil)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, PathLocal, handle.Path)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
}

type fakeCoordinator struct {
	available bool
	err       error
	delegated int
}

func (f *fakeCoordinator) IsAvailable(context.Context) bool { return f.available }
func (f *fakeCoordinator) Delegate(_ context.Context, task ports.AgentTask) (*ports.AgentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.delegated++
	return &ports.AgentResult{Response: "analyzed: " + task.TaskType, Confidence: 0.9}, nil
}

func aiGraph() *domain.Graph {
	return &domain.Graph{
		Nodes: []domain.Node{
			{ID: "think", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "ai_process", "prompt": "summarize"}},
		},
	}
}

func TestEngine_AINodeDelegated(t *testing.T) {
	coordinator := &fakeCoordinator{available: true}
	eng, store := newTestEngine(t, nil, coordinator)

	handle, err := eng.Submit(context.Background(), aiGraph(), "alice", nil)
	require.NoError(t, err)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Equal(t, 1, coordinator.delegated)

	output := record.OutputData["think"].Output
	assert.Equal(t, true, output["delegated"])
	result := output["result"].(map[string]interface{})
	assert.Equal(t, "analyzed: action", result["processed_data"])
}

func TestEngine_DelegationFailureFallsBackToExecutor(t *testing.T) {
	coordinator := &fakeCoordinator{
		available: true,
		err:       assert.AnError,
	}
	eng, store := newTestEngine(t, nil, coordinator)

	handle, err := eng.Submit(context.Background(), aiGraph(), "alice", nil)
	require.NoError(t, err)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	// Delegation failure is invisible to the caller: the plain
	// executor runs and the execution completes.
	assert.Equal(t, domain.StatusCompleted, record.Status)
	output := record.OutputData["think"].Output
	assert.NotContains(t, output, "delegated")
}

func TestEngine_NonAINodesNeverDelegated(t *testing.T) {
	coordinator := &fakeCoordinator{available: true}
	eng, store := newTestEngine(t, nil, coordinator)

	handle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)

	record := waitForTerminal(t, store, handle.ExecutionID, "alice")
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Equal(t, 0, coordinator.delegated)
}

func TestEngine_StatsAfterMixedOutcomes(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	okHandle, err := eng.Submit(context.Background(), linearGraph(), "alice", nil)
	require.NoError(t, err)
	waitForTerminal(t, store, okHandle.ExecutionID, "alice")

	failing := &domain.Graph{
		Nodes: []domain.Node{
			{ID: "b", Type: domain.PrimitiveAction, Config: map[string]interface{}{"action_type": "api_call", "url": "http://127.0.0.1:1"}},
		},
	}
	failHandle, err := eng.Submit(context.Background(), failing, "alice", nil)
	require.NoError(t, err)
	waitForTerminal(t, store, failHandle.ExecutionID, "alice")

	stats, err := eng.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}
