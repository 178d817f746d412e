// Package agents implements best-effort delegation of AI-tagged
// workflow nodes to an LLM-backed coordinator.
package agents
