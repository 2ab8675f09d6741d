package model

import "time"

type StepType string

const (
	RootStepType   StepType = "root"
	StageStepType  StepType = "stage"
	CleanupType    StepType = "cleanup"
	NotifyStepType StepType = "notify"
)

// StepInfo describes one node of a task graph.
type StepInfo struct {
	Type     StepType
	Name     string
	Priority int
	Pool     string
	Timeout  time.Duration
}

// Outcome is the final state of a node within one session run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeUpstreamFailed Outcome = "upstream_failed"
)

var (
	StartStep = &StepInfo{Type: RootStepType, Name: "start"}
	EndStep   = &StepInfo{Type: RootStepType, Name: "end"}
)
