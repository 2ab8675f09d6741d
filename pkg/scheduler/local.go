package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/pool"
	"github.com/askiada/go-preprocess/pkg/notify"
	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// Local runs the nodes of a session one after the other, in the order of DAG.Nodes.
type Local struct {
	notifier notify.Notifier
	pools    *pool.Pools
	now      func() time.Time
}

// LocalOption configures a Local engine.
type LocalOption func(l *Local)

// WithNotifier sets where notification targets are triggered. Defaults to notify.Log.
func WithNotifier(n notify.Notifier) LocalOption {
	return func(l *Local) {
		l.notifier = n
	}
}

// WithPools limits how many nodes of a pool run at once across sessions.
func WithPools(p *pool.Pools) LocalOption {
	return func(l *Local) {
		l.pools = p
	}
}

// NewLocal creates a local engine.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		notifier: notify.Log{},
		pools:    pool.New(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Submit runs session through dag. The returned error wraps ErrRunFailed when a node
// failed; skipped sessions are not an error.
func (l *Local) Submit(ctx context.Context, dag *pipeline.DAG, session pipeline.Session) (Report, error) {
	if dag == nil {
		return Report{}, pipeline.ErrDAGMustBeSet
	}
	if session.ID == "" {
		return Report{}, ErrSessionRequired
	}
	if session.RunID == "" {
		session.RunID = uuid.NewString()
	}

	nodes, err := dag.Nodes()
	if err != nil {
		return Report{}, err
	}

	logger := ctxlog.FromContext(ctx).With("dag", dag.ID, "run_id", session.RunID, "session_id", session.ID)
	ctx = ctxlog.WithLogger(ctx, logger)

	start := l.now()
	report := Report{DAGID: dag.ID, RunID: session.RunID, SessionID: session.ID}
	states := make(map[string]NodeReport, len(nodes))

	for _, node := range nodes {
		var state NodeReport
		up := node.Upstream()
		upState, hasUpstream := states[up]

		switch {
		case hasUpstream && upState.Outcome == model.OutcomeSkipped:
			state = NodeReport{ID: node.ID, Outcome: model.OutcomeSkipped}
		case hasUpstream && upState.Outcome != model.OutcomeSuccess:
			state = NodeReport{ID: node.ID, Outcome: model.OutcomeUpstreamFailed}
		default:
			in := pipeline.Input{Session: session, Folder: session.Folder}
			if hasUpstream {
				in.Folder = upState.Folder
			}
			state = l.runNode(ctx, dag, node, in)
		}

		states[node.ID] = state
		report.Nodes = append(report.Nodes, state)
	}

	report.Elapsed = l.now().Sub(start)
	for _, opt := range dag.Options() {
		err := opt.AfterRun(report.Elapsed)
		if err != nil {
			return report, errors.Wrap(err, "unable to run after run option")
		}
	}

	logger.Info("session run done", "outcome", report.Outcome(), "elapsed", report.Elapsed)

	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "session run interrupted")
	}
	if report.Outcome() == model.OutcomeFailed {
		return report, errors.Wrapf(ErrRunFailed, "%s on %s", session.ID, dag.ID)
	}

	return report, nil
}

// runNode runs the task of node with the retry policy of the DAG and triggers the
// notification targets of the final outcome.
func (l *Local) runNode(ctx context.Context, dag *pipeline.DAG, node *pipeline.Node, in pipeline.Input) NodeReport {
	logger := ctxlog.FromContext(ctx).With("node", node.ID)
	ctx = ctxlog.WithLogger(ctx, logger)

	maxAttempts := dag.DefaultArgs.Retries + 1
	state := NodeReport{ID: node.ID}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state.Attempts = attempt

		var (
			out     pipeline.Output
			elapsed time.Duration
		)
		out, elapsed, err = l.attempt(ctx, node, in)
		state.Elapsed += elapsed

		switch {
		case err == nil:
			state.Outcome = model.OutcomeSuccess
			state.Folder = out.Folder
		case pipeline.IsSkip(err):
			state.Outcome = model.OutcomeSkipped
		default:
			state.Outcome = model.OutcomeFailed
		}
		l.stepDone(ctx, dag, node, attempt, elapsed, state.Outcome)

		if state.Outcome != model.OutcomeFailed || attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		logger.Warn("node failed, retrying", "attempt", attempt, "delay", dag.DefaultArgs.RetryDelay, "error", err)
		if waitErr := wait(ctx, dag.DefaultArgs.RetryDelay); waitErr != nil {
			break
		}
	}

	ev := notify.Event{
		DAGID:     dag.ID,
		RunID:     in.Session.RunID,
		SessionID: in.Session.ID,
		Folder:    in.Folder,
		Node:      node.ID,
		Outcome:   string(state.Outcome),
		Time:      l.now(),
	}
	if err != nil {
		state.Error = err.Error()
		ev.Reason = err.Error()
	}

	switch state.Outcome {
	case model.OutcomeSuccess:
		logger.Info("node done", "elapsed", state.Elapsed, "folder", state.Folder)
		l.trigger(ctx, node.OnSuccessTrigger, ev)
	case model.OutcomeSkipped:
		logger.Info("node skipped", "reason", state.Error)
		l.trigger(ctx, node.OnSkipTrigger, ev)
	default:
		logger.Error("node failed", "attempts", state.Attempts, "error", state.Error)
		l.trigger(ctx, node.OnFailureTrigger, ev)
	}

	return state
}

func (l *Local) attempt(ctx context.Context, node *pipeline.Node, in pipeline.Input) (pipeline.Output, time.Duration, error) {
	release, err := l.pools.Acquire(ctx, node.Pool)
	if err != nil {
		return pipeline.Output{}, 0, err
	}
	defer release()

	runCtx := ctx
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	start := l.now()
	out, err := node.Task.Run(runCtx, in)
	elapsed := l.now().Sub(start)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !pipeline.IsSkip(err) {
		err = errors.Wrapf(err, "%s timed out after %s", node.ID, node.Timeout)
	}

	return out, elapsed, err
}

func (l *Local) stepDone(ctx context.Context, dag *pipeline.DAG, node *pipeline.Node, attempt int, elapsed time.Duration, outcome model.Outcome) {
	for _, opt := range dag.Options() {
		err := opt.OnStepDone(node.Info(), attempt, elapsed, outcome)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("step done option failed", "error", err)
		}
	}
}

func (l *Local) trigger(ctx context.Context, target string, ev notify.Event) {
	if target == "" {
		return
	}

	err := l.notifier.Trigger(ctx, target, ev)
	if err != nil {
		ctxlog.FromContext(ctx).Error("unable to trigger notification", "target", target, "error", err)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Scheduler = (*Local)(nil)
