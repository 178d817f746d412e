// Package config provides configuration management for the workflow
// engine.
//
// Configuration is loaded from environment variables using the env
// package. Redis, the durable execution service and the LLM provider
// are all optional; the engine degrades to in-memory adapters, local
// execution and plain executors respectively.
package config
