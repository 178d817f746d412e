package durable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

const (
	maxAttempts  = 3
	baseBackoff  = 500 * time.Millisecond
	maxBackoff   = 10 * time.Second
	pollInterval = time.Second
)

// RemoteEngine implements ports.DurableEngine against an external
// durable-execution service over HTTP. Submission retries up to three
// attempts with capped exponential backoff; connectivity failures
// surface as DurableEngineUnavailable so the caller can fall back to
// local execution.
type RemoteEngine struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewRemoteEngine creates a durable engine client for the given base
// endpoint, e.g. "http://durable:7233".
func NewRemoteEngine(endpoint string, timeout time.Duration, logger *zap.Logger) *RemoteEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type submitRequest struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	UserID      string                 `json:"user_id"`
	Graph       *domain.Graph          `json:"graph"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type executionResponse struct {
	ExecutionID string                       `json:"execution_id"`
	Status      domain.ExecutionStatus       `json:"status"`
	Results     map[string]domain.NodeResult `json:"results,omitempty"`
	Error       string                       `json:"error,omitempty"`
}

// IsAvailable pings the service health endpoint.
func (r *RemoteEngine) IsAvailable(ctx context.Context) bool {
	if r == nil || r.endpoint == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Execute submits the graph as a single unit of work and polls until
// the remote run reaches a terminal status or ctx is done.
func (r *RemoteEngine) Execute(ctx context.Context, graph *domain.Graph, execCtx *domain.ExecutionContext) (map[string]domain.NodeResult, error) {
	body := &submitRequest{
		ExecutionID: execCtx.ExecutionID,
		WorkflowID:  execCtx.WorkflowID,
		UserID:      execCtx.UserID,
		Graph:       graph,
		Metadata:    execCtx.Metadata,
	}

	if err := r.submit(ctx, body); err != nil {
		return nil, err
	}
	return r.await(ctx, execCtx.ExecutionID)
}

func (r *RemoteEngine) submit(ctx context.Context, body *submitRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	var lastErr error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := r.post(ctx, "/v1/executions", data)
		if err == nil {
			return r.consume(resp, http.StatusAccepted, http.StatusOK, http.StatusCreated)
		}
		lastErr = err

		r.logger.Warn("durable submission attempt failed",
			zap.String("execution_id", body.ExecutionID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.WrapError(domain.ErrCodeDurableEngineUnavailable, ctx.Err(), "durable submission interrupted")
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return domain.WrapError(domain.ErrCodeDurableEngineUnavailable, lastErr, "durable engine unreachable")
}

func (r *RemoteEngine) await(ctx context.Context, executionID string) (map[string]domain.NodeResult, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			state, err := r.fetch(ctx, executionID)
			if err != nil {
				return nil, err
			}
			switch state.Status {
			case domain.StatusCompleted:
				return state.Results, nil
			case domain.StatusFailed:
				return state.Results, domain.NewError(domain.ErrCodeNodeExecutionFailed, "durable execution failed: %s", state.Error)
			case domain.StatusCancelled:
				return state.Results, domain.NewError(domain.ErrCodeCancelled, "durable execution cancelled")
			}
		}
	}
}

// Status queries the remote run's current status.
func (r *RemoteEngine) Status(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	state, err := r.fetch(ctx, executionID)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

// Cancel requests cancellation of the remote run.
func (r *RemoteEngine) Cancel(ctx context.Context, executionID string) error {
	resp, err := r.post(ctx, "/v1/executions/"+executionID+"/cancel", nil)
	if err != nil {
		return domain.WrapError(domain.ErrCodeDurableEngineUnavailable, err, "durable engine unreachable")
	}
	return r.consume(resp, http.StatusAccepted, http.StatusOK, http.StatusNoContent)
}

func (r *RemoteEngine) fetch(ctx context.Context, executionID string) (*executionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/v1/executions/"+executionID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeDurableEngineUnavailable, err, "durable engine unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewError(domain.ErrCodeNotFound, "durable execution not found: %s", executionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("durable engine returned status %d", resp.StatusCode)
	}

	var state executionResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode durable response: %w", err)
	}
	return &state, nil
}

func (r *RemoteEngine) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.client.Do(req)
}

func (r *RemoteEngine) consume(resp *http.Response, accepted ...int) error {
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("durable engine returned status %d", resp.StatusCode)
}
