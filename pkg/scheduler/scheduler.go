// Package scheduler hands an assembled task graph to an execution engine.
//
// Local runs sessions in process and honours what an external workflow engine would:
// node timeouts, the retry policy of the DAG default arguments, pool slots and the
// skip, failure and success notification targets. Manifest describes the same graph
// for an external engine.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

var (
	ErrRunFailed        = errors.New("session run failed")
	ErrSessionRequired  = errors.New("session id is required")
	ErrDuplicateSession = errors.New("session submitted twice")
)

// Scheduler runs one session through a DAG.
type Scheduler interface {
	Submit(ctx context.Context, dag *pipeline.DAG, session pipeline.Session) (Report, error)
}

// NodeReport is the final state of one node.
type NodeReport struct {
	ID       string        `json:"id" yaml:"id"`
	Outcome  model.Outcome `json:"outcome" yaml:"outcome"`
	Attempts int           `json:"attempts" yaml:"attempts"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
	Folder   string        `json:"folder,omitempty" yaml:"folder,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the result of one session run.
type Report struct {
	DAGID     string        `json:"dag_id" yaml:"dag_id"`
	RunID     string        `json:"run_id" yaml:"run_id"`
	SessionID string        `json:"session_id" yaml:"session_id"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Nodes     []NodeReport  `json:"nodes" yaml:"nodes"`
}

// Node returns the report of the node id.
func (r Report) Node(id string) (NodeReport, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return NodeReport{}, false
}

// Outcome summarises the run: failed when a node failed, skipped when a node was
// skipped, success otherwise.
func (r Report) Outcome() model.Outcome {
	outcome := model.OutcomeSuccess
	for _, n := range r.Nodes {
		switch n.Outcome {
		case model.OutcomeFailed, model.OutcomeUpstreamFailed:
			return model.OutcomeFailed
		case model.OutcomeSkipped:
			outcome = model.OutcomeSkipped
		}
	}

	return outcome
}
