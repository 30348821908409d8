package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent duration samples and computes
// percentiles over them. Used by the service layer to log classification p95s.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, 0, maxSize)}
}

// Observe records a new duration, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) < cap(l.samples) {
		l.samples = append(l.samples, d)
		return
	}
	l.samples[l.next] = d
	l.next = (l.next + 1) % cap(l.samples)
}

// Percentile returns the percentile (0-100) duration, or zero with no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
