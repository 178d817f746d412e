package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.AgentsEnabled())
	assert.Empty(t, cfg.Durable.Endpoint)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PENTAFLOW_HTTP_PORT", "8888")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LLM_API_KEY", "key-123")
	t.Setenv("DURABLE_ENDPOINT", "http://durable:7233")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.HTTPPort)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.AgentsEnabled())
	assert.Equal(t, "http://durable:7233", cfg.Durable.Endpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port out of range", func(c *Config) { c.HTTPPort = 0 }},
		{"grpc port out of range", func(c *Config) { c.GRPCPort = 70000 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown llm provider with key", func(c *Config) {
			c.LLM.APIKey = "key"
			c.LLM.Provider = "acme"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_UnknownProviderWithoutKeyIsAllowed(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Provider is only checked once a key makes delegation possible.
	cfg.LLM.Provider = "acme"
	assert.NoError(t, cfg.Validate())
}
