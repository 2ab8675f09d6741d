package measure

import (
	"time"

	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

type pipelineMeasure struct {
	Measure
}

func (pm *pipelineMeasure) New() error {
	pm.AddMetric(model.StartStep.Name)
	pm.AddMetric(model.EndStep.Name)

	return nil
}

func (pm *pipelineMeasure) PrepareStep(_, step *model.StepInfo) error {
	pm.AddMetric(step.Name)

	return nil
}

func (pm *pipelineMeasure) UpdateStep(*model.StepInfo) error {
	return nil
}

func (pm *pipelineMeasure) OnStepDone(step *model.StepInfo, _ int, elapsed time.Duration, outcome model.Outcome) error {
	pm.AddMetric(step.Name).AddAttempt(elapsed, outcome)

	return nil
}

func (pm *pipelineMeasure) AfterRun(totalDuration time.Duration) error {
	pm.GetMetric(model.EndStep.Name).AddAttempt(totalDuration, "")

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	return nil
}

// PipelineMeasure records every node attempt into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{measure}
}
