package drawer

import (
	"time"

	"github.com/askiada/go-preprocess/pkg/pipeline/measure"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// Drawer is an interface that defines the methods for drawing a task graph.
type Drawer interface {
	// AddStep adds a step to the drawer.
	AddStep(step *model.StepInfo) error
	// UpdateStep refreshes the attributes of an existing step.
	UpdateStep(step *model.StepInfo) error
	// AddLink adds a link between parent and child steps.
	AddLink(parentStepName, childStepName string) error
	// Draw writes the graph.
	Draw() error
	// SetTotalTime labels the step with a total duration.
	SetTotalTime(stepName string, total time.Duration) error
	// AddMeasure colours the steps by average duration.
	AddMeasure(measure measure.Measure) error
}
