// Package workflow implements Conveyor's task-graph execution core.
//
// A workflow is declared as a set of TaskSpec values, each naming an id, an
// action, and the ids of the tasks it depends on. NewGraph builds an
// immutable dependency graph from the declarations, Validate checks it for
// missing references and cycles, and Engine executes it under a sequential
// or parallel policy with per-task retry and timeout.
//
// The package has no knowledge of what a task does; actions are opaque
// callables. Higher layers (pkg/orchestrator) compose named steps into
// graphs and feed them through this machinery.
package workflow
