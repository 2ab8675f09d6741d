package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// RunSessions submits every session, at most dag.MaxActiveRuns at a time. A failed
// session does not stop the others. Reports follow the order of sessions and the
// returned error is the first session error.
func RunSessions(ctx context.Context, s Scheduler, dag *pipeline.DAG, sessions []pipeline.Session) ([]Report, error) {
	if dag == nil {
		return nil, pipeline.ErrDAGMustBeSet
	}

	sessions = append([]pipeline.Session(nil), sessions...)
	seen := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		if sessions[i].ID == "" {
			return nil, ErrSessionRequired
		}
		if _, ok := seen[sessions[i].ID]; ok {
			return nil, errors.Wrap(ErrDuplicateSession, sessions[i].ID)
		}
		seen[sessions[i].ID] = struct{}{}

		if sessions[i].RunID == "" {
			sessions[i].RunID = uuid.NewString()
		}
	}

	var errGrp errgroup.Group
	if dag.MaxActiveRuns > 0 {
		errGrp.SetLimit(dag.MaxActiveRuns)
	}

	reports := make([]Report, len(sessions))
	for i, session := range sessions {
		errGrp.Go(func() error {
			report, err := s.Submit(ctx, dag, session)
			reports[i] = report

			if err != nil {
				ctxlog.FromContext(ctx).Error("session failed", "session_id", session.ID, "error", err)
			}

			return err
		})
	}

	err := errGrp.Wait()

	return reports, err
}
