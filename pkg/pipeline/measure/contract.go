package measure

import (
	"time"

	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// Measure collects one Metric per node of a graph.
type Measure interface {
	AddMetric(name string) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric aggregates the attempts of a node across every session run.
type Metric interface {
	AddAttempt(elapsed time.Duration, outcome model.Outcome)
	Attempts() int
	AVGDuration() time.Duration
	TotalDuration() time.Duration
	Outcomes() map[model.Outcome]int
}
