// Package websocket provides real-time event streaming.
//
// Clients connect to /api/v1/executions/:id/ws to receive lifecycle
// events for one execution as they happen.
package websocket
