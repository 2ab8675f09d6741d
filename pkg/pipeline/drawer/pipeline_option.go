package drawer

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/pkg/pipeline/measure"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m measure.Measure

	mu    sync.Mutex
	total time.Duration
}

func (pd *pipelineDrawer) New() error {
	err := pd.AddStep(model.StartStep)
	if err != nil {
		return errors.Wrap(err, "unable to add start step to drawer")
	}
	err = pd.AddStep(model.EndStep)
	if err != nil {
		return errors.Wrap(err, "unable to add end step to drawer")
	}

	return nil
}

func (pd *pipelineDrawer) PrepareStep(parentStep, step *model.StepInfo) error {
	err := pd.AddStep(step)
	if err != nil {
		return err
	}

	return pd.AddLink(parentStep.Name, step.Name)
}

func (pd *pipelineDrawer) OnStepDone(*model.StepInfo, int, time.Duration, model.Outcome) error {
	return nil
}

func (pd *pipelineDrawer) AfterRun(totalDuration time.Duration) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pd.total += totalDuration

	return nil
}

func (pd *pipelineDrawer) Finish() error {
	if pd.m != nil {
		pd.mu.Lock()
		total := pd.total
		pd.mu.Unlock()

		if total > 0 {
			err := pd.SetTotalTime(model.EndStep.Name, total)
			if err != nil {
				return errors.Wrap(err, "unable to set total time")
			}
		}
		err := pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err := pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the graph when the pipeline finishes. measure may be nil.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure}
}
