package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/internal/application/planner"
	"github.com/pentaflow/pentaflow/pkg/domain"
	"github.com/pentaflow/pentaflow/pkg/ports"
)

// run drives one execution to a terminal state. Any panic below is
// caught here and converted into a failed record; the caller of Submit
// never sees an uncontrolled crash.
func (e *Engine) run(ctx context.Context, exec *execution, graph *domain.Graph,
	plan *planner.ExecutionPlan, execCtx *domain.ExecutionContext, path ExecutionPath) {

	defer e.wg.Done()
	defer e.trackActive(-1)
	defer e.executions.Delete(exec.id)

	start := time.Now()
	var results map[string]domain.NodeResult
	var runErr error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				runErr = domain.NewError(domain.ErrCodeNodeExecutionFailed, "execution panic: %v", rec)
				e.logger.Error("execution panicked",
					zap.String("execution_id", exec.id),
					zap.Any("panic", rec))
			}
		}()

		if _, err := e.store.Update(ctx, exec.id, domain.StatusRunning, nil, "", 0); err != nil {
			e.logger.Error("failed to mark execution running",
				zap.String("execution_id", exec.id), zap.Error(err))
		}
		e.publishEvent(ctx, domain.EventTypeExecutionStarted, exec.id, "", map[string]interface{}{
			"path": string(path),
		})

		if path == PathDurable {
			results, runErr = e.runDurable(ctx, graph, plan, execCtx)
		} else {
			results, runErr = e.runLocal(ctx, exec, graph, plan, execCtx)
		}
	}()

	elapsed := time.Since(start).Seconds()
	e.finalize(exec, results, runErr, path, elapsed)
}

// runDurable hands the entire graph to the durable collaborator as a
// single unit of work. Per-node retry and backoff live inside the
// collaborator. An unavailable engine degrades to the local path.
func (e *Engine) runDurable(ctx context.Context, graph *domain.Graph,
	plan *planner.ExecutionPlan, execCtx *domain.ExecutionContext) (map[string]domain.NodeResult, error) {

	results, err := e.durable.Execute(ctx, graph, execCtx)
	if err == nil {
		return results, nil
	}

	if domain.ErrorCodeOf(err) == domain.ErrCodeDurableEngineUnavailable {
		e.logger.Warn("durable engine unavailable, falling back to local execution",
			zap.String("execution_id", execCtx.ExecutionID),
			zap.Error(err))
		exec := e.inFlight(execCtx.ExecutionID)
		return e.runLocal(ctx, exec, graph, plan, execCtx)
	}

	return results, err
}

// runLocal iterates the plan order in-process. Cancellation is checked
// between node executions; the first failed node stops everything
// downstream while completed results are retained.
func (e *Engine) runLocal(ctx context.Context, exec *execution, graph *domain.Graph,
	plan *planner.ExecutionPlan, execCtx *domain.ExecutionContext) (map[string]domain.NodeResult, error) {

	results := make(map[string]domain.NodeResult, len(plan.Order))

	for _, nodeID := range plan.Order {
		select {
		case <-ctx.Done():
			return results, e.interruptionError(ctx, exec)
		default:
		}

		node := graph.Node(nodeID)
		inputs, err := plan.ResolveInputs(nodeID, results)
		if err != nil {
			return results, err
		}

		execCtx.NodeID = nodeID
		e.publishEvent(ctx, domain.EventTypeNodeStarted, execCtx.ExecutionID, nodeID, nil)

		nodeStart := time.Now()
		output, nodeErr := e.executeNode(ctx, node, inputs, execCtx)
		nodeElapsed := time.Since(nodeStart)

		if nodeErr != nil {
			results[nodeID] = domain.NodeResult{
				NodeID:    nodeID,
				Status:    domain.StatusFailed,
				Error:     nodeErr.Error(),
				Timestamp: time.Now(),
			}
			e.publishEvent(ctx, domain.EventTypeNodeFailed, execCtx.ExecutionID, nodeID, map[string]interface{}{
				"error": nodeErr.Error(),
			})
			e.metrics.RecordNodeExecuted(string(node.Type), string(domain.StatusFailed), nodeElapsed)

			// Interruption during a node (wait, api_call) surfaces as a
			// context error; report it as cancellation/timeout, not a
			// node bug.
			if ctx.Err() != nil && errors.Is(nodeErr, ctx.Err()) {
				return results, e.interruptionError(ctx, exec)
			}
			return results, &domain.Error{
				Code:    domain.ErrCodeNodeExecutionFailed,
				NodeID:  nodeID,
				Message: nodeErr.Error(),
				Cause:   nodeErr,
			}
		}

		results[nodeID] = domain.NodeResult{
			NodeID:    nodeID,
			Status:    domain.StatusCompleted,
			Output:    output,
			Timestamp: time.Now(),
		}
		execCtx.PreviousOutputs[nodeID] = output

		e.publishEvent(ctx, domain.EventTypeNodeCompleted, execCtx.ExecutionID, nodeID, map[string]interface{}{
			"output": output,
		})
		e.metrics.RecordNodeExecuted(string(node.Type), string(domain.StatusCompleted), nodeElapsed)
	}

	return results, nil
}

// executeNode runs one node, delegating AI-tagged nodes to the agent
// coordinator when one is reachable. Delegation is best-effort: any
// coordinator error falls back to the plain executor.
func (e *Engine) executeNode(ctx context.Context, node *domain.Node,
	inputs map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {

	if e.agents != nil && isAITagged(node) {
		if e.agents.IsAvailable(ctx) {
			output, err := e.delegateNode(ctx, node, inputs, execCtx)
			if err == nil {
				e.metrics.RecordAgentDelegation("delegated")
				return output, nil
			}
			e.logger.Warn("agent delegation failed, using plain executor",
				zap.String("execution_id", execCtx.ExecutionID),
				zap.String("node_id", node.ID),
				zap.Error(err))
			e.metrics.RecordAgentDelegation("fallback")
		} else {
			e.metrics.RecordAgentDelegation("unavailable")
		}
	}

	result, err := e.registry.Execute(ctx, node.Type, node.Config, inputs, execCtx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		// The registry flattens executor errors to strings; a done run
		// context means this one was an interruption, not a node bug.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s", result.Error)
	}

	// Executors report operational failures (unreachable hosts, HTTP
	// error statuses, failed validations) inside their output; an
	// explicit success=false fails the node.
	if flag, ok := result.Data["success"].(bool); ok && !flag {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(outputFailureMessage(result.Data))
	}
	return result.Data, nil
}

// outputFailureMessage extracts a readable reason from an unsuccessful
// executor output.
func outputFailureMessage(output map[string]interface{}) string {
	if result, ok := output["result"].(map[string]interface{}); ok {
		if msg, ok := result["error"].(string); ok && msg != "" {
			return msg
		}
		if code, ok := result["status_code"]; ok {
			return fmt.Sprintf("request failed with status %v", code)
		}
	}
	return "executor reported failure"
}

// delegateNode routes one AI-tagged node through the multi-agent
// coordinator and shapes the answer like the plain executor's output.
func (e *Engine) delegateNode(ctx context.Context, node *domain.Node,
	inputs map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {

	prompt, _ := node.Config["prompt"].(string)
	if prompt == "" {
		prompt = fmt.Sprintf("Execute workflow step %s (%s) with input %v", node.ID, node.Type, inputs)
	}

	result, err := e.agents.Delegate(ctx, ports.AgentTask{
		TaskType: string(node.Type),
		Prompt:   prompt,
		Context: map[string]interface{}{
			"execution_id": execCtx.ExecutionID,
			"node_id":      node.ID,
			"config":       node.Config,
			"inputs":       inputs,
		},
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"action_type": "ai_process",
		"result": map[string]interface{}{
			"processed_data": result.Response,
			"confidence":     result.Confidence,
		},
		"success":        true,
		"delegated":      true,
		"execution_time": execCtx.Elapsed().Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// finalize writes the terminal record exactly once and publishes the
// closing event.
func (e *Engine) finalize(exec *execution, results map[string]domain.NodeResult,
	runErr error, path ExecutionPath, elapsed float64) {

	// The run context may already be done; finalization uses a fresh
	// one so the terminal write always lands.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := domain.StatusCompleted
	eventType := domain.EventTypeExecutionCompleted
	errorMessage := ""

	if runErr != nil {
		status = domain.StatusFailed
		errorMessage = runErr.Error()
		eventType = domain.EventTypeExecutionFailed
		if domain.ErrorCodeOf(runErr) == domain.ErrCodeCancelled {
			eventType = domain.EventTypeExecutionCancelled
		}
	}

	if _, err := e.store.Update(ctx, exec.id, status, results, errorMessage, elapsed); err != nil {
		e.logger.Error("failed to finalize execution record",
			zap.String("execution_id", exec.id), zap.Error(err))
	}

	e.publishEvent(ctx, eventType, exec.id, "", map[string]interface{}{
		"status":                 string(status),
		"error":                  errorMessage,
		"execution_time_seconds": elapsed,
		"node_count":             len(results),
	})
	e.metrics.RecordExecutionCompleted(string(status), string(path), time.Duration(elapsed*float64(time.Second)))

	e.logger.Info("execution finished",
		zap.String("execution_id", exec.id),
		zap.String("status", string(status)),
		zap.String("path", string(path)),
		zap.Float64("elapsed_seconds", elapsed))
}

// interruptionError distinguishes user cancellation from the overall
// graph timeout once the run context is done.
func (e *Engine) interruptionError(ctx context.Context, exec *execution) error {
	if exec != nil {
		exec.mu.Lock()
		cancelled := exec.cancelled
		exec.mu.Unlock()
		if cancelled {
			return domain.NewError(domain.ErrCodeCancelled, "execution cancelled")
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.ErrCodeNodeExecutionFailed, "execution timeout")
	}
	return domain.NewError(domain.ErrCodeCancelled, "execution cancelled")
}

// inFlight looks up the tracked execution, tolerating absence.
func (e *Engine) inFlight(executionID string) *execution {
	if val, ok := e.executions.Load(executionID); ok {
		return val.(*execution)
	}
	return nil
}

// isAITagged reports whether a node should be offered to the agent
// coordinator: ai_process actions, or action/connection nodes
// explicitly marked with use_agent.
func isAITagged(node *domain.Node) bool {
	if node.Type != domain.PrimitiveAction && node.Type != domain.PrimitiveConnection {
		return false
	}
	if v, ok := node.Config["action_type"].(string); ok && v == "ai_process" {
		return true
	}
	useAgent, _ := node.Config["use_agent"].(bool)
	return useAgent
}
