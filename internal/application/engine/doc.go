// Package engine implements the dual-path orchestrator. One execution
// moves pending → running → completed/failed; terminal states are
// absorbing. A run is handed to the durable collaborator as a single
// unit of work when one is reachable, and otherwise executed locally
// in plan order with cooperative cancellation, an overall wall-clock
// timeout and fail-fast node semantics. AI-tagged nodes may be
// delegated to a multi-agent coordinator, falling back to the plain
// executor on any delegation error.
package engine
