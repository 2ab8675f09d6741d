// Package notify triggers the notification workflows attached to nodes.
//
// A node names up to three targets: one for a skipped session, one for a failure after
// the last attempt and, on the terminal node only, one for a successful run.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
)

const (
	TargetSkipped = "mri_notify_skipped_processing"
	TargetFailed  = "mri_notify_failed_processing"
	TargetSuccess = "mri_notify_successful_processing"
)

// Event describes why a target was triggered.
type Event struct {
	DAGID     string    `json:"dag_id" yaml:"dag_id"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	Folder    string    `json:"folder" yaml:"folder"`
	Node      string    `json:"node" yaml:"node"`
	Outcome   string    `json:"outcome" yaml:"outcome"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Time      time.Time `json:"time" yaml:"time"`
}

// Notifier triggers a named notification workflow.
type Notifier interface {
	Trigger(ctx context.Context, target string, ev Event) error
}

// Log writes every trigger to the context logger.
type Log struct{}

func (Log) Trigger(ctx context.Context, target string, ev Event) error {
	ctxlog.FromContext(ctx).Info("notification triggered",
		"target", target,
		"dag_id", ev.DAGID,
		"run_id", ev.RunID,
		"session_id", ev.SessionID,
		"node", ev.Node,
		"outcome", ev.Outcome,
		"reason", ev.Reason,
	)

	return nil
}

// Triggered is one call recorded by Recorder.
type Triggered struct {
	Target string
	Event  Event
}

// Recorder keeps every trigger in memory.
type Recorder struct {
	mu    sync.Mutex
	calls []Triggered
}

func (r *Recorder) Trigger(_ context.Context, target string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Triggered{Target: target, Event: ev})

	return nil
}

// Calls returns a copy of the recorded triggers in call order.
func (r *Recorder) Calls() []Triggered {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Triggered, len(r.calls))
	copy(out, r.calls)

	return out
}

// Targets returns the recorded targets in call order.
func (r *Recorder) Targets() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Target)
	}

	return out
}

// Multi triggers every notifier in turn and stops at the first error.
type Multi []Notifier

func (m Multi) Trigger(ctx context.Context, target string, ev Event) error {
	for _, n := range m {
		err := n.Trigger(ctx, target, ev)
		if err != nil {
			return errors.Wrapf(err, "unable to trigger %s", target)
		}
	}

	return nil
}

var (
	_ Notifier = Log{}
	_ Notifier = (*Recorder)(nil)
	_ Notifier = Multi(nil)
)
