package measure

import (
	"sync"
	"time"

	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

type DefaultMetric struct {
	mu       sync.Mutex
	outcomes map[model.Outcome]int
	elapsed  time.Duration
	total    int
}

func newDefaultMetric() *DefaultMetric {
	return &DefaultMetric{
		outcomes: make(map[model.Outcome]int),
	}
}

// AddAttempt records one attempt. An empty outcome only counts the duration.
func (mt *DefaultMetric) AddAttempt(elapsed time.Duration, outcome model.Outcome) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.total++
	mt.elapsed += elapsed
	if outcome != "" {
		mt.outcomes[outcome]++
	}
}

func (mt *DefaultMetric) Attempts() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.total
}

func (mt *DefaultMetric) TotalDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.elapsed
}

func (mt *DefaultMetric) AVGDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.total == 0 {
		return time.Duration(0)
	}

	return round(time.Duration(float64(mt.elapsed) / float64(mt.total)))
}

func (mt *DefaultMetric) Outcomes() map[model.Outcome]int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make(map[model.Outcome]int, len(mt.outcomes))
	for k, v := range mt.outcomes {
		out[k] = v
	}

	return out
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Second:
		d = d.Round(time.Second)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}

	return d
}
