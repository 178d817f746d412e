// Package planner turns a node-and-edge graph into a dependency
// resolved execution plan: cycle detection, a deterministic
// topological order (Kahn's algorithm), parallel-eligible levels and
// per-node input resolution with last-writer-wins merging.
package planner
