// Package domain defines the core types of the pentaflow engine:
// graphs of primitive-typed nodes, execution records and node results,
// lifecycle events, and the typed error taxonomy shared by every layer.
package domain
