package gsckit

import "sync"

// MetricsRecorder increments counters for retrieval and credential events.
type MetricsRecorder interface {
	Increment(event string)
}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex       sync.RWMutex
	eventCounts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{eventCounts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.eventCounts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.RLock()
	defer recorder.mutex.RUnlock()
	return recorder.eventCounts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.RLock()
	defer recorder.mutex.RUnlock()
	clone := make(map[string]int64, len(recorder.eventCounts))
	for event, count := range recorder.eventCounts {
		clone[event] = count
	}
	return clone
}
