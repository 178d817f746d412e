package primitives

import (
	"context"

	"github.com/google/uuid"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ConnectionExecutor establishes handles to external services. The
// core does not hold real credentials; connections produce a typed
// handle the downstream nodes reference. The gmail and slack subtypes
// are AI-routable when an agent coordinator is configured.
type ConnectionExecutor struct {
	subtypes map[string]subtypeFunc
}

// NewConnectionExecutor creates the connection executor with its
// subtype dispatch table.
func NewConnectionExecutor() *ConnectionExecutor {
	e := &ConnectionExecutor{}
	e.subtypes = map[string]subtypeFunc{
		"gmail":    e.runGmail,
		"slack":    e.runSlack,
		"hubspot":  e.runHubspot,
		"database": e.runDatabase,
		"api":      e.runAPI,
		"webhook":  e.runWebhook,
		"oauth":    e.runOAuth,
		"api_key":  e.runAPIKey,
	}
	return e
}

func (e *ConnectionExecutor) Type() domain.PrimitiveType { return domain.PrimitiveConnection }

func (e *ConnectionExecutor) ValidateConfig(config map[string]interface{}) error {
	_, _, err := dispatchSubtype(domain.PrimitiveConnection, "connection_type", "", e.subtypes, config)
	return err
}

func (e *ConnectionExecutor) Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	_, fn, err := dispatchSubtype(domain.PrimitiveConnection, "connection_type", "", e.subtypes, config)
	if err != nil {
		return nil, err
	}
	return fn(ctx, config, input, execCtx)
}

func (e *ConnectionExecutor) output(connectionType string, metadata map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"connection_type": connectionType,
		"connected":       true,
		"connection_id":   connectionType + "_" + uuid.New().String()[:8],
		"metadata":        metadata,
		"timestamp":       timestamp(),
	}
}

func (e *ConnectionExecutor) runGmail(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("gmail", map[string]interface{}{
		"scopes":     []interface{}{"https://www.googleapis.com/auth/gmail.send"},
		"user_email": configString(config, "user_email", "user@example.com"),
	}), nil
}

func (e *ConnectionExecutor) runSlack(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("slack", map[string]interface{}{
		"workspace": configString(config, "workspace", ""),
		"channel":   configString(config, "channel", "#general"),
	}), nil
}

func (e *ConnectionExecutor) runHubspot(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("hubspot", map[string]interface{}{
		"portal_id": configString(config, "portal_id", ""),
	}), nil
}

func (e *ConnectionExecutor) runDatabase(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("database", map[string]interface{}{
		"driver":   configString(config, "driver", "postgres"),
		"database": configString(config, "database", ""),
	}), nil
}

func (e *ConnectionExecutor) runAPI(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("api", map[string]interface{}{
		"base_url": configString(config, "base_url", ""),
	}), nil
}

func (e *ConnectionExecutor) runWebhook(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("webhook", map[string]interface{}{
		"url":    configString(config, "url", ""),
		"secret": configString(config, "secret", "") != "",
	}), nil
}

func (e *ConnectionExecutor) runOAuth(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("oauth", map[string]interface{}{
		"provider": configString(config, "provider", ""),
		"scopes":   config["scopes"],
	}), nil
}

func (e *ConnectionExecutor) runAPIKey(_ context.Context, config, _ map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	return e.output("api_key", map[string]interface{}{
		"service":     configString(config, "service", ""),
		"key_present": configString(config, "api_key", "") != "",
	}), nil
}
