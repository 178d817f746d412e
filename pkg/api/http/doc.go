// Package http provides the HTTP REST API.
//
// The server exposes endpoints for:
//   - Execution submission, status, history, result and cancellation
//   - Per-owner listing and aggregate statistics
//   - Health checks and Prometheus metrics
package http
