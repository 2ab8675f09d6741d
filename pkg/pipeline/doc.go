// Package pipeline provides the task graph handed to a workflow scheduler.
//
// A DAG is a set of named nodes linked by typed edges. Every node wraps a Task together with
// the scheduling metadata an external engine needs: a priority weight, an execution timeout,
// a resource pool, a markdown documentation block and the notification targets to trigger
// when the task fails or decides there is nothing to do.
//
// Nodes are added one at a time below an upstream Step, the handle returned for the previous
// node. Adding a node below an unknown upstream fails, which keeps every node of a DAG
// schedulable. Cycles are rejected by the underlying graph.
//
// Tasks report three outcomes: success, failure (any error) and skip (an error matching
// ErrSkip). The package never runs tasks itself; see the scheduler package for that.
package pipeline
