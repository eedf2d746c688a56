// Package metrics provides Prometheus metrics for go-analysis-harness.
//
// All series are aggregate. Label sets stay small and fixed (run
// results, progress marker kinds), so cardinality is flat no matter
// how many analyzer runs a session makes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Aggregate Metrics
// =============================================================================

// --- Panel 1: Session Overview ---
var (
	harnessInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harness_info",
			Help: "Information about the harness session (value always 1)",
		},
		[]string{"version", "interpreter"},
	)

	harnessConcurrentLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_concurrent_limit",
			Help: "Configured ceiling on simultaneously running analyzers",
		},
	)

	harnessActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_active_runs",
			Help: "Currently running analyzer processes",
		},
	)

	harnessSessionElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_session_elapsed_seconds",
			Help: "Seconds since the session started",
		},
	)
)

// --- Panel 2: Run Outcomes ---
var (
	harnessRunsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_runs_started_total",
			Help: "Total analyzer processes spawned",
		},
	)

	harnessRunsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_runs_completed_total",
			Help: "Resolved runs by result",
		},
		[]string{"result"}, // "report", "nonzero_exit", "timeout", "cancelled", "parse", "spawn"
	)

	harnessRunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "harness_run_duration_seconds",
			Help: "Wall-clock run duration from spawn to resolution",
			Buckets: []float64{
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10,
				30, 60, 120, 300,
			},
		},
	)

	harnessSlowShutdownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_slow_shutdowns_total",
			Help: "Signalled runs whose process outlived the grace window",
		},
	)
)

// --- Panel 3: Output Streams ---
var (
	harnessStdoutBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harness_run_stdout_bytes",
			Help:    "Captured stdout size per run",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		},
	)

	harnessStderrBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harness_run_stderr_bytes",
			Help:    "Captured stderr size per run",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		},
	)

	harnessProgressEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_progress_events_total",
			Help: "Translated progress events by marker kind",
		},
		[]string{"kind"}, // "start", "complete", "units", "unit"
	)

	harnessProgressDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_progress_dropped_total",
			Help: "Progress events dropped because the consumer lagged",
		},
	)
)

// --- Panel 4: Call Guard ---
var (
	harnessGuardCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_guard_calls_total",
			Help: "Total calls entering the single-flight guard",
		},
	)

	harnessGuardExecutionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_guard_executions_total",
			Help: "Guarded calls that spawned their own run",
		},
	)

	harnessGuardAttachedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harness_guard_attached_total",
			Help: "Guarded calls served by another caller's run",
		},
	)
)

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for a harness session.
type Collector struct {
	// Configuration
	concurrent int

	// Timing
	startTime time.Time

	// Internal tracking for delta calculations
	mu                  sync.Mutex
	prevGuardCalls      int64
	prevGuardExecutions int64
	prevGuardAttached   int64
	prevProgressDropped int64

	// For the session close-out log
	active        int
	peakActive    int
	totalStarts   int64
	slowShutdowns int64
	resultCounts  map[string]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version     string
	Interpreter string
	Concurrent  int
}

// NewCollector creates a new metrics collector.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		concurrent:   cfg.Concurrent,
		startTime:    time.Now(),
		resultCounts: make(map[string]int64),
	}

	registry.MustRegister(
		// Panel 1: Session Overview
		harnessInfo,
		harnessConcurrentLimit,
		harnessActiveRuns,
		harnessSessionElapsedSeconds,

		// Panel 2: Run Outcomes
		harnessRunsStartedTotal,
		harnessRunsCompletedTotal,
		harnessRunDurationSeconds,
		harnessSlowShutdownsTotal,

		// Panel 3: Output Streams
		harnessStdoutBytes,
		harnessStderrBytes,
		harnessProgressEventsTotal,
		harnessProgressDroppedTotal,

		// Panel 4: Call Guard
		harnessGuardCallsTotal,
		harnessGuardExecutionsTotal,
		harnessGuardAttachedTotal,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	// Set initial values
	harnessInfo.WithLabelValues(version, cfg.Interpreter).Set(1)
	harnessConcurrentLimit.Set(float64(cfg.Concurrent))
	harnessSessionElapsedSeconds.Set(0)

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RunStarted records an analyzer process spawn.
func (c *Collector) RunStarted() {
	harnessRunsStartedTotal.Inc()
	harnessActiveRuns.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.active++
	if c.active > c.peakActive {
		c.peakActive = c.active
	}
	c.mu.Unlock()
}

// RunOutcome describes one resolved run for metric recording.
type RunOutcome struct {
	// Result is "report" for success, or the failure kind name.
	Result string

	// Spawned is false when no process ever started, so nothing was
	// active to wind down.
	Spawned bool

	// Elapsed is the wall-clock duration from spawn to resolution.
	Elapsed time.Duration

	// StdoutBytes and StderrBytes are the captured stream sizes.
	StdoutBytes int
	StderrBytes int

	// SlowShutdown marks a signalled process that outlived its grace
	// window.
	SlowShutdown bool
}

// RecordRun records a resolved run.
func (c *Collector) RecordRun(o RunOutcome) {
	harnessRunsCompletedTotal.WithLabelValues(o.Result).Inc()
	harnessRunDurationSeconds.Observe(o.Elapsed.Seconds())
	harnessStdoutBytes.Observe(float64(o.StdoutBytes))
	harnessStderrBytes.Observe(float64(o.StderrBytes))

	if o.Spawned {
		harnessActiveRuns.Dec()
	}
	if o.SlowShutdown {
		harnessSlowShutdownsTotal.Inc()
	}

	c.mu.Lock()
	if o.Spawned && c.active > 0 {
		c.active--
	}
	if o.SlowShutdown {
		c.slowShutdowns++
	}
	c.resultCounts[o.Result]++
	c.mu.Unlock()
}

// RecordProgress counts one translated progress event.
func (c *Collector) RecordProgress(kind string) {
	harnessProgressEventsTotal.WithLabelValues(kind).Inc()
}

// =============================================================================
// Periodic Update Methods
// =============================================================================

// SessionUpdate holds sampled lifetime totals for periodic recording.
// Totals come from guard.Stats and the progress pipeline; the collector
// converts them to counter increments.
type SessionUpdate struct {
	GuardCalls      int64
	GuardExecutions int64
	GuardAttached   int64
	ProgressDropped int64
}

// RecordSession refreshes session gauges and folds sampled totals into
// the counters, adding only the delta since the previous update.
func (c *Collector) RecordSession(u SessionUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	harnessSessionElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	if d := u.GuardCalls - c.prevGuardCalls; d > 0 {
		harnessGuardCallsTotal.Add(float64(d))
	}
	if d := u.GuardExecutions - c.prevGuardExecutions; d > 0 {
		harnessGuardExecutionsTotal.Add(float64(d))
	}
	if d := u.GuardAttached - c.prevGuardAttached; d > 0 {
		harnessGuardAttachedTotal.Add(float64(d))
	}
	if d := u.ProgressDropped - c.prevProgressDropped; d > 0 {
		harnessProgressDroppedTotal.Add(float64(d))
	}

	c.prevGuardCalls = u.GuardCalls
	c.prevGuardExecutions = u.GuardExecutions
	c.prevGuardAttached = u.GuardAttached
	c.prevProgressDropped = u.ProgressDropped
}

// =============================================================================
// Accessors
// =============================================================================

// PeakActive returns the highest simultaneous run count observed.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalStarts returns the total number of processes spawned.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// SlowShutdowns returns how many runs needed more than the grace
// window to die.
func (c *Collector) SlowShutdowns() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slowShutdowns
}

// ResultCounts returns a copy of the per-result completion counts.
func (c *Collector) ResultCounts() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.resultCounts))
	for k, v := range c.resultCounts {
		out[k] = v
	}
	return out
}
