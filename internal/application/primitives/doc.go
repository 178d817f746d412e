// Package primitives implements the five built-in step categories of
// the workflow engine (trigger, action, connection, condition, data)
// and the registry that validates graphs against them and dispatches
// execution calls.
//
// Each executor selects concrete behavior through a subtype dispatch
// table keyed by a config field (trigger_type, action_type, and so on).
// Unknown subtypes are rejected at config-validation time so they never
// reach runtime dispatch. The registry wraps every outcome in a uniform
// Result and converts executor panics into failed results.
package primitives
