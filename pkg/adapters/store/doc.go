// Package store provides execution store implementations.
//
// Implementations:
//   - redis: JSON records with TTL, per-owner index, append-only history
//   - memory: in-memory, for tests and Redis-less deployments
package store
