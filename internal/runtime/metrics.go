package runtime

import "sync/atomic"

// Metrics counts runs that actually started. Pre-flight rejections
// (unknown backend, failed capability check, invalid work order) do not
// appear here.
type Metrics struct {
	totalRuns       atomic.Int64
	completedRuns   atomic.Int64
	failedRuns      atomic.Int64
	totalDurationMS atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalRuns       int64
	CompletedRuns   int64
	FailedRuns      int64
	TotalDurationMS int64
}

func (m *Metrics) recordStart() {
	m.totalRuns.Add(1)
}

func (m *Metrics) recordFinish(durationMS int64, failed bool) {
	m.totalDurationMS.Add(durationMS)
	if failed {
		m.failedRuns.Add(1)
	} else {
		m.completedRuns.Add(1)
	}
}

// Snapshot reads the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRuns:       m.totalRuns.Load(),
		CompletedRuns:   m.completedRuns.Load(),
		FailedRuns:      m.failedRuns.Load(),
		TotalDurationMS: m.totalDurationMS.Load(),
	}
}
