// Package timeseries provides time-windowed rate tracking for the
// dashboard.
//
// A RateTracker follows one monotone counter (resolved runs, progress
// events, captured output bytes) and computes rolling per-second rates
// over fixed windows. Adds are lock-free; periodic sampling and reads
// share a small ring of cumulative snapshots.
//
// Memory: ~10KB for 300 samples (5 minutes at 1 sample/sec).
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	// Window durations for rolling rates
	window10s  = 10 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative counter.
type sample struct {
	timestamp time.Time
	total     int64
}

// RateTracker follows a cumulative counter and computes rolling
// per-second rates over fixed windows.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(1)          // per event (thread-safe, lock-free)
//	// ... periodic sampling (e.g., every 1s via ticker)
//	tracker.RecordSample()
//	// ... read rates on the dashboard tick
//	stats := tracker.Stats()
type RateTracker struct {
	// total is the cumulative count (atomic for lock-free Add)
	total atomic.Int64

	// Ring buffer of samples for rolling rate calculation
	samples  []sample
	writeIdx int // Next write position in ring buffer
	mu       sync.RWMutex

	// Start time for overall rate calculation
	startTime time.Time

	// Clock for testability
	clock Clock
}

// RateStats contains computed rolling rates at a point in time. Units
// are whatever the caller adds, per second.
type RateStats struct {
	// Total is the cumulative count since start
	Total int64

	// Rolling rates
	Rate10s  float64 // Rate over the last 10 seconds
	Rate60s  float64 // Rate over the last 60 seconds
	Rate300s float64 // Rate over the last 300 seconds (5 minutes)

	// RateOverall is the rate since tracking started
	RateOverall float64
}

// NewRateTracker creates a tracker on the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for
// testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	// Record initial sample at t=0 with a zero count
	t.samples = append(t.samples, sample{timestamp: now, total: 0})
	return t
}

// Add folds n into the cumulative total. Thread-safe and lock-free.
// Non-positive values are ignored so a bad caller cannot make the
// counter run backwards.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample records the current cumulative total with a timestamp.
// Call periodically (e.g., every 1 second via ticker).
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	current := t.total.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	newSample := sample{timestamp: now, total: current}

	if len(t.samples) < ringBufferSize {
		// Buffer not yet full - append
		t.samples = append(t.samples, newSample)
	} else {
		// Buffer full - overwrite oldest
		t.samples[t.writeIdx] = newSample
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// Stats computes the current rolling rates. Always returns valid data:
// when a window reaches past recorded history it falls back to the
// oldest sample, so the dashboard never renders "no data" while the
// counter is nonzero.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	current := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{
		Total: current,
	}

	// Overall rate
	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.RateOverall = float64(current) / elapsed
	}

	// Rolling rates for each window
	stats.Rate10s = t.rateOverWindow(now, current, window10s)
	stats.Rate60s = t.rateOverWindow(now, current, window60s)
	stats.Rate300s = t.rateOverWindow(now, current, window300s)

	return stats
}

// rateOverWindow calculates the per-second rate over the specified
// window. Must be called with mu held (at least RLock).
func (t *RateTracker) rateOverWindow(now time.Time, current int64, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	targetTime := now.Add(-window)

	// Find the sample closest to (but not after) targetTime
	var bestSample *sample
	var bestDiff time.Duration = -1

	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue // Sample is within the window, skip
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			bestSample = s
			bestDiff = diff
		}
	}

	// If no sample before targetTime, use the oldest sample we have
	if bestSample == nil {
		bestSample = t.oldestSample()
	}

	if bestSample == nil {
		return 0
	}

	counted := current - bestSample.total
	actualElapsed := now.Sub(bestSample.timestamp).Seconds()

	if actualElapsed <= 0 {
		return 0 // Avoid division by zero
	}

	return float64(counted) / actualElapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}

	if len(t.samples) < ringBufferSize {
		// Buffer not full yet - oldest is at index 0
		return &t.samples[0]
	}

	// Buffer full - oldest is at writeIdx (next to be overwritten)
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = t.samples[:0]
	t.samples = append(t.samples, sample{timestamp: now, total: 0})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
// Useful for testing.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
