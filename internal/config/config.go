package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the workflow engine.
type Config struct {
	HTTPPort int    `env:"PENTAFLOW_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PENTAFLOW_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Redis    RedisConfig
	LLM      LLMConfig
	Durable  DurableConfig
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration. An empty Addr
// selects the in-memory store and event bus.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// RecordTTL bounds how long finished execution records are kept.
	RecordTTL time.Duration `env:"REDIS_RECORD_TTL" envDefault:"168h"`
}

// LLMConfig holds LLM provider configuration. An empty APIKey disables
// agent delegation; executions then always use the plain executors.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	DefaultModel     string        `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-20250514"`
	DefaultMaxTokens int           `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
	RequestTimeout   time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`
}

// DurableConfig holds the external durable execution service
// configuration. An empty Endpoint means executions always run on the
// local path.
type DurableConfig struct {
	Endpoint       string        `env:"DURABLE_ENDPOINT"`
	RequestTimeout time.Duration `env:"DURABLE_REQUEST_TIMEOUT" envDefault:"30s"`
}

// TimeoutConfig holds engine timeout configuration.
type TimeoutConfig struct {
	GraphExecutionTimeout time.Duration `env:"TIMEOUT_GRAPH_EXECUTION" envDefault:"3600s"`
	ShutdownTimeout       time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.LLM.APIKey != "" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	return nil
}

// AgentsEnabled reports whether agent delegation is configured.
func (c *Config) AgentsEnabled() bool {
	return c.LLM.APIKey != ""
}

// RedisEnabled reports whether Redis-backed adapters are configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
