package pipeline

import (
	"context"
	"time"

	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// Step is the handle of a node: its id and scheduling priority.
type Step struct {
	ID       string
	Priority int
}

// Root is the upstream of the first node of a DAG.
var Root = Step{}

// IsRoot reports whether s is the empty handle.
func (s Step) IsRoot() bool {
	return s.ID == ""
}

// Session identifies the scan being processed by one DAG run.
type Session struct {
	ID     string
	Folder string
	RunID  string
	// Conf holds the free-form run configuration supplied by whoever triggered the run.
	Conf map[string]string
}

// Input is what a task receives at execution time.
type Input struct {
	Session Session
	// Folder is the output folder of the upstream node, or the session folder for the first node.
	Folder string
}

// Output is what a task exposes to its downstream nodes.
type Output struct {
	Folder string
}

// Task is the unit of work wrapped by a node.
type Task interface {
	Run(ctx context.Context, in Input) (Output, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, in Input) (Output, error)

func (f TaskFunc) Run(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Node is one task of a DAG together with its scheduling metadata.
type Node struct {
	ID       string
	Type     model.StepType
	Priority int
	Timeout  time.Duration
	Pool     string
	// Doc is a markdown block shown by the scheduler UI.
	Doc string
	// Operator names the kind of work, e.g. "spm" or "python", for manifests.
	Operator string
	// Params are free-form operator parameters, exported as-is in manifests.
	Params map[string]string

	OnSkipTrigger    string
	OnFailureTrigger string
	// OnSuccessTrigger is only set on terminal nodes.
	OnSuccessTrigger string

	Task Task

	upstream string
}

// Upstream returns the id of the node this one depends on, empty for the first node.
func (n *Node) Upstream() string {
	return n.upstream
}

// Step returns the handle of n.
func (n *Node) Step() Step {
	return Step{ID: n.ID, Priority: n.Priority}
}

// Info returns the description of n handed to options.
func (n *Node) Info() *model.StepInfo {
	typ := n.Type
	if typ == "" {
		typ = model.StageStepType
	}

	return &model.StepInfo{
		Type:     typ,
		Name:     n.ID,
		Priority: n.Priority,
		Pool:     n.Pool,
		Timeout:  n.Timeout,
	}
}
