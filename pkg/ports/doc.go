// Package ports declares the interfaces between the engine core and
// its collaborators: the execution store, the event bus, the durable
// execution engine, the multi-agent coordinator, the LLM client and
// the metrics collector. Adapters live under pkg/adapters.
package ports
