// Package durable provides the client for an external durable
// execution service. When the service is unreachable the engine falls
// back to local in-process execution.
package durable
