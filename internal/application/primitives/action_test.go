package primitives

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

func runAction(t *testing.T, config, input map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := NewActionExecutor().Run(context.Background(), config, input, testExecCtx())
	require.NoError(t, err)
	return out
}

func TestAction_TypeRequired(t *testing.T) {
	err := NewActionExecutor().ValidateConfig(map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))
}

func TestAction_UnknownSubtypeRejected(t *testing.T) {
	err := NewActionExecutor().ValidateConfig(map[string]interface{}{"action_type": "levitate"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))
}

func TestAction_Wait(t *testing.T) {
	start := time.Now()
	out := runAction(t,
		map[string]interface{}{"action_type": "wait", "duration": 0.05, "unit": "seconds"},
		nil)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, true, out["success"])
	result := out["result"].(map[string]interface{})
	assert.Equal(t, 0.05, result["actual_seconds"])
}

func TestAction_WaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := NewActionExecutor().Run(ctx,
		map[string]interface{}{"action_type": "wait", "duration": 10, "unit": "seconds"},
		nil, testExecCtx())

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAction_APICall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo": true}`))
	}))
	defer server.Close()

	out := runAction(t,
		map[string]interface{}{
			"action_type": "api_call",
			"url":         server.URL,
			"method":      "POST",
			"body":        map[string]interface{}{"ping": 1},
		},
		nil)

	assert.Equal(t, true, out["success"])
	result := out["result"].(map[string]interface{})
	assert.Equal(t, http.StatusOK, result["status_code"])
	body := result["body"].(map[string]interface{})
	assert.Equal(t, true, body["echo"])
}

func TestAction_APICallErrorIsUnsuccessfulOutput(t *testing.T) {
	// Connection refused surfaces as success=false output, not an error.
	out := runAction(t,
		map[string]interface{}{
			"action_type": "api_call",
			"url":         "http://127.0.0.1:1",
		},
		nil)

	assert.Equal(t, false, out["success"])
	result := out["result"].(map[string]interface{})
	assert.NotEmpty(t, result["error"])
}

func TestAction_APICallServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	out := runAction(t,
		map[string]interface{}{"action_type": "api_call", "url": server.URL},
		nil)

	assert.Equal(t, false, out["success"])
	result := out["result"].(map[string]interface{})
	assert.Equal(t, http.StatusInternalServerError, result["status_code"])
}

func TestAction_Transform(t *testing.T) {
	out := runAction(t,
		map[string]interface{}{
			"action_type": "transform",
			"mapping": map[string]interface{}{
				"fullName": "name",
			},
		},
		map[string]interface{}{"data": map[string]interface{}{"name": "Ada", "extra": 1}})

	result := out["result"].(map[string]interface{})
	transformed := result["transformed_data"].(map[string]interface{})
	assert.Equal(t, "Ada", transformed["fullName"])
	assert.Equal(t, 1, result["fields_mapped"])
}

func TestAction_AIProcessFallbackShape(t *testing.T) {
	out := runAction(t,
		map[string]interface{}{"action_type": "ai_process", "prompt": "summarize"},
		map[string]interface{}{"data": map[string]interface{}{"text": "hello"}})

	assert.Equal(t, "ai_process", out["action_type"])
	assert.Equal(t, true, out["success"])
	result := out["result"].(map[string]interface{})
	assert.Contains(t, result["processed_data"], "AI processed")
	assert.Equal(t, "summarize", result["prompt"])
}

func TestTrigger_ManualDefault(t *testing.T) {
	out, err := NewTriggerExecutor().Run(context.Background(), nil,
		map[string]interface{}{"trigger_data": map[string]interface{}{"source": "button"}},
		testExecCtx())
	require.NoError(t, err)

	assert.Equal(t, true, out["triggered"])
	assert.Equal(t, "manual", out["trigger_type"])
	assert.Equal(t, "user-1", out["initiated_by"])
	triggerData := out["trigger_data"].(map[string]interface{})
	assert.Equal(t, "button", triggerData["source"])
}

func TestTrigger_Webhook(t *testing.T) {
	out, err := NewTriggerExecutor().Run(context.Background(),
		map[string]interface{}{"trigger_type": "webhook", "webhook_url": "/hooks/orders", "method": "PUT"},
		nil, testExecCtx())
	require.NoError(t, err)

	assert.Equal(t, "webhook", out["trigger_type"])
	assert.Equal(t, "/hooks/orders", out["webhook_url"])
	assert.Equal(t, "PUT", out["method"])
}

func TestConnection_SubtypeRequired(t *testing.T) {
	err := NewConnectionExecutor().ValidateConfig(map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))
}

func TestConnection_SlackHandle(t *testing.T) {
	out, err := NewConnectionExecutor().Run(context.Background(),
		map[string]interface{}{"connection_type": "slack", "channel": "#alerts"},
		nil, testExecCtx())
	require.NoError(t, err)

	assert.Equal(t, true, out["connected"])
	assert.Equal(t, "slack", out["connection_type"])
	assert.Contains(t, out["connection_id"], "slack_")
	metadata := out["metadata"].(map[string]interface{})
	assert.Equal(t, "#alerts", metadata["channel"])
}
