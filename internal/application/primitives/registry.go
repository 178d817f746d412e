package primitives

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// Registry holds one executor per primitive type and dispatches
// execution calls. It is constructed once at startup, passed by
// reference into the engine and API layers, and read-only afterwards.
type Registry struct {
	executors map[domain.PrimitiveType]Executor
	logger    *zap.Logger
}

// NewRegistry creates a registry populated with the five built-in
// primitive executors.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		executors: make(map[domain.PrimitiveType]Executor),
		logger:    logger,
	}

	r.Register(NewTriggerExecutor())
	r.Register(NewActionExecutor())
	r.Register(NewConnectionExecutor())
	r.Register(NewConditionExecutor())
	r.Register(NewDataExecutor())

	return r
}

// Register installs an executor for its primitive type, replacing any
// previous registration.
func (r *Registry) Register(executor Executor) {
	r.executors[executor.Type()] = executor
	r.logger.Debug("registered primitive executor",
		zap.String("primitive_type", string(executor.Type())))
}

// Executor returns the executor for a primitive type.
func (r *Registry) Executor(primitiveType domain.PrimitiveType) (Executor, bool) {
	e, ok := r.executors[primitiveType]
	return e, ok
}

// Types lists the registered primitive types.
func (r *Registry) Types() []domain.PrimitiveType {
	types := make([]domain.PrimitiveType, 0, len(r.executors))
	for _, t := range domain.PrimitiveTypes {
		if _, ok := r.executors[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// Execute validates the node config and runs the executor, wrapping
// the outcome uniformly. The returned error is non-nil only for
// pre-execution problems (unregistered type, invalid config); runtime
// failures, including executor panics, come back as an unsuccessful
// Result and never propagate unwrapped.
func (r *Registry) Execute(ctx context.Context, primitiveType domain.PrimitiveType,
	config, input map[string]interface{}, execCtx *domain.ExecutionContext) (*domain.Result, error) {

	executor, ok := r.executors[primitiveType]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeUnregisteredPrimitive,
			"no executor registered for primitive type: %s", primitiveType)
	}

	if err := executor.ValidateConfig(config); err != nil {
		return nil, err
	}

	start := time.Now()
	output, runErr := r.runSafely(ctx, executor, config, input, execCtx)
	elapsed := time.Since(start)

	meta := domain.ResultMetadata{
		PrimitiveType: primitiveType,
		ExecutionTime: elapsed.Seconds(),
		NodeID:        execCtx.NodeID,
	}

	if runErr != nil {
		r.logger.Error("primitive execution failed",
			zap.String("primitive_type", string(primitiveType)),
			zap.String("node_id", execCtx.NodeID),
			zap.String("execution_id", execCtx.ExecutionID),
			zap.Error(runErr))
		return &domain.Result{Success: false, Error: runErr.Error(), Metadata: meta}, nil
	}

	return &domain.Result{Success: true, Data: output, Metadata: meta}, nil
}

// runSafely converts executor panics into errors.
func (r *Registry) runSafely(ctx context.Context, executor Executor,
	config, input map[string]interface{}, execCtx *domain.ExecutionContext) (output map[string]interface{}, err error) {

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panic: %v", rec)
		}
	}()

	return executor.Run(ctx, config, input, execCtx)
}

// ValidateGraph checks every node against the registered executors and
// returns the first failure found: an UnregisteredPrimitive error for
// an unknown type or the executor's InvalidConfig error.
func (r *Registry) ValidateGraph(graph *domain.Graph) error {
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		executor, ok := r.executors[node.Type]
		if !ok {
			return &domain.Error{
				Code:    domain.ErrCodeUnregisteredPrimitive,
				NodeID:  node.ID,
				Message: fmt.Sprintf("unregistered primitive type: %s", node.Type),
			}
		}
		if err := executor.ValidateConfig(node.Config); err != nil {
			return &domain.Error{
				Code:    domain.ErrCodeInvalidConfig,
				NodeID:  node.ID,
				Message: err.Error(),
			}
		}
	}
	return nil
}

// ValidateGraphAll is the accumulating form of ValidateGraph, used for
// reporting every invalid node at once.
func (r *Registry) ValidateGraphAll(graph *domain.Graph) []error {
	var errs []error
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		executor, ok := r.executors[node.Type]
		if !ok {
			errs = append(errs, &domain.Error{
				Code:    domain.ErrCodeUnregisteredPrimitive,
				NodeID:  node.ID,
				Message: fmt.Sprintf("unregistered primitive type: %s", node.Type),
			})
			continue
		}
		if err := executor.ValidateConfig(node.Config); err != nil {
			errs = append(errs, &domain.Error{
				Code:    domain.ErrCodeInvalidConfig,
				NodeID:  node.ID,
				Message: err.Error(),
			})
		}
	}
	return errs
}
