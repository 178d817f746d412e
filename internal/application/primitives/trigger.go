package primitives

import (
	"context"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// TriggerExecutor handles workflow initiation. Triggers do not wait
// for their originating event at execution time; they record how the
// run was started and pass the trigger payload downstream.
type TriggerExecutor struct {
	subtypes map[string]subtypeFunc
}

// NewTriggerExecutor creates the trigger executor with its subtype
// dispatch table.
func NewTriggerExecutor() *TriggerExecutor {
	e := &TriggerExecutor{}
	e.subtypes = map[string]subtypeFunc{
		"webhook":  e.runWebhook,
		"schedule": e.runSchedule,
		"database": e.runDatabase,
		"manual":   e.runManual,
		"api":      e.runAPI,
		"email":    e.runEmail,
		"sms":      e.runSMS,
		"iot":      e.runIoT,
	}
	return e
}

func (e *TriggerExecutor) Type() domain.PrimitiveType { return domain.PrimitiveTrigger }

func (e *TriggerExecutor) ValidateConfig(config map[string]interface{}) error {
	_, _, err := dispatchSubtype(domain.PrimitiveTrigger, "trigger_type", "manual", e.subtypes, config)
	return err
}

func (e *TriggerExecutor) Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	_, fn, err := dispatchSubtype(domain.PrimitiveTrigger, "trigger_type", "manual", e.subtypes, config)
	if err != nil {
		return nil, err
	}
	return fn(ctx, config, input, execCtx)
}

// baseOutput carries the fields every trigger emits.
func (e *TriggerExecutor) baseOutput(triggerType string, input map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"triggered":    true,
		"trigger_type": triggerType,
		"trigger_data": configMap(input, "trigger_data"),
		"timestamp":    timestamp(),
	}
}

func (e *TriggerExecutor) runWebhook(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("webhook", input)
	out["webhook_url"] = configString(config, "webhook_url", "/webhook")
	out["method"] = configString(config, "method", "POST")
	return out, nil
}

func (e *TriggerExecutor) runSchedule(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("schedule", input)
	out["schedule"] = configString(config, "schedule", "0 0 * * *")
	out["timezone"] = configString(config, "timezone", "UTC")
	return out, nil
}

func (e *TriggerExecutor) runDatabase(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("database", input)
	out["table"] = configString(config, "table", "")
	out["operation"] = configString(config, "operation", "INSERT")
	return out, nil
}

func (e *TriggerExecutor) runManual(_ context.Context, _, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("manual", input)
	out["initiated_by"] = execCtx.UserID
	return out, nil
}

func (e *TriggerExecutor) runAPI(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("api", input)
	out["endpoint"] = configString(config, "endpoint", "/api/trigger")
	return out, nil
}

func (e *TriggerExecutor) runEmail(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("email", input)
	out["from"] = configString(config, "from_email", "")
	out["subject"] = configString(config, "subject_contains", "")
	return out, nil
}

func (e *TriggerExecutor) runSMS(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("sms", input)
	out["from_number"] = configString(config, "from_number", "")
	out["message_contains"] = configString(config, "message_contains", "")
	return out, nil
}

func (e *TriggerExecutor) runIoT(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	out := e.baseOutput("iot", input)
	out["device_id"] = configString(config, "device_id", "")
	out["event_type"] = configString(config, "event_type", "")
	return out, nil
}
