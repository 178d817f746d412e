// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: in-process handlers, for tests and Redis-less deployments
package events
