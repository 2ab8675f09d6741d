package model

import "time"

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error

	pipelineStepOption
	pipelineRunOption

	// Finish runs once nobody needs the pipeline anymore.
	Finish() error
}

// pipelineStepOption defines the interface for step options at graph assembly time.
type pipelineStepOption interface {
	// PrepareStep runs when the step is added below parentStep. parentStep is StartStep
	// for the first step of a graph.
	PrepareStep(parentStep, step *StepInfo) error
	// UpdateStep runs when the description of an existing step changed.
	UpdateStep(step *StepInfo) error
}

// pipelineRunOption defines the interface for step options at execution time.
type pipelineRunOption interface {
	// OnStepDone runs after every attempt of a step.
	OnStepDone(step *StepInfo, attempt int, elapsed time.Duration, outcome Outcome) error
	// AfterRun runs after a session went through the whole graph.
	AfterRun(totalDuration time.Duration) error
}
