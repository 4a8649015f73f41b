package lifecycle

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// StageStats tracks how long entries spend in each processing stage.
// Latencies feed a DDSketch per stage so operators can read percentiles
// without the cost of keeping raw durations.
type StageStats struct {
	mu sync.Mutex

	completed map[Status]int64
	failed    map[Status]int64
	sketches  map[Status]*ddsketch.DDSketch
}

// NewStageStats creates an empty stats collector.
func NewStageStats() *StageStats {
	return &StageStats{
		completed: make(map[Status]int64),
		failed:    make(map[Status]int64),
		sketches:  make(map[Status]*ddsketch.DDSketch),
	}
}

// RecordSuccess records a completed stage and its duration.
func (s *StageStats) RecordSuccess(stage Status, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed[stage]++
	sk, ok := s.sketches[stage]
	if !ok {
		// 1% relative accuracy is plenty for operator dashboards.
		var err error
		sk, err = ddsketch.NewDefaultDDSketch(0.01)
		if err != nil {
			return
		}
		s.sketches[stage] = sk
	}
	_ = sk.Add(float64(d.Milliseconds()))
}

// RecordFailure records a stage attempt that parked the entry in Error.
func (s *StageStats) RecordFailure(stage Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[stage]++
}

// Completed returns the number of successful stage completions.
func (s *StageStats) Completed(stage Status) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[stage]
}

// Failed returns the number of failed stage attempts.
func (s *StageStats) Failed(stage Status) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[stage]
}

// LatencyQuantile returns the q-quantile (0..1) of a stage's latency in
// milliseconds. ok is false when no latencies were recorded yet.
func (s *StageStats) LatencyQuantile(stage Status, q float64) (ms float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := s.sketches[stage]
	if sk == nil || sk.GetCount() == 0 {
		return 0, false
	}
	v, err := sk.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}
