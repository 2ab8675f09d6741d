package stages

import (
	"context"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/pkg/notify"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// BuildNotifySuccess ends the DAG: once it runs the success target is triggered.
func BuildNotifySuccess(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	doc := "# Notify successful processing\n\n" +
		"Triggers __" + notify.TargetSuccess + "__ once every stage of the session is done.\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		ctxlog.FromContext(ctx).Info("session processed", "session", in.Session.ID, "folder", in.Folder)

		return pipeline.Output{Folder: in.Folder}, nil
	})

	step, err := addNode(d, upstream, s, NotifySuccess, doc, map[string]string{"trigger": notify.TargetSuccess}, task)
	if err != nil {
		return pipeline.Step{}, err
	}

	node, err := d.Node(step.ID)
	if err != nil {
		return pipeline.Step{}, err
	}
	node.OnSuccessTrigger = notify.TargetSuccess

	return step, nil
}
