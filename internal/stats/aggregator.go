package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// SessionStats is a point-in-time view of the session, consumed by the
// dashboard tick and by the exit summary.
type SessionStats struct {
	Timestamp time.Time
	Elapsed   time.Duration

	// ActiveRuns is sorted oldest start first.
	ActiveRuns []ActiveRun

	TotalStarts    int64
	TotalCompleted int64
	ResultCounts   map[string]int64
	ExitCodes      map[int]int64
	SlowShutdowns  int64

	TotalStdoutBytes int64
	TotalStderrBytes int64

	// Duration distribution over runs that spawned. Zero until the
	// first such run resolves.
	DurationP50 time.Duration
	DurationP90 time.Duration
	DurationP99 time.Duration
	DurationMin time.Duration
	DurationMax time.Duration
	DurationAvg time.Duration
}

// Succeeded returns the number of runs that produced a report.
func (s *SessionStats) Succeeded() int64 {
	return s.ResultCounts[ResultReport]
}

// Failed returns the number of runs that resolved without a report.
func (s *SessionStats) Failed() int64 {
	return s.TotalCompleted - s.Succeeded()
}

// SuccessRate returns the fraction of completed runs that produced a
// report, 0 until something completes.
func (s *SessionStats) SuccessRate() float64 {
	if s.TotalCompleted == 0 {
		return 0
	}
	return float64(s.Succeeded()) / float64(s.TotalCompleted)
}

// Aggregator folds resolved run records into session totals and keeps
// the live view of in-flight runs.
//
// Completion counts and the active map live under mu. Duration
// accounting, including the t-digest, lives under durationsMu so that
// percentile reads never block run registration.
type Aggregator struct {
	startTime time.Time

	mu            sync.RWMutex
	active        map[string]*ActiveRun
	counts        map[string]int64
	exitCodes     map[int]int64
	starts        int64
	completed     int64
	slowShutdowns int64
	stdoutBytes   int64
	stderrBytes   int64

	// durations approximates the run duration distribution using ~100
	// centroids (~10KB). TDigest is not thread-safe.
	durationsMu sync.Mutex
	durations   *tdigest.TDigest
	measured    int64
	minElapsed  time.Duration
	maxElapsed  time.Duration
	sumElapsed  time.Duration
}

// NewAggregator creates an empty aggregator. The session clock starts
// now.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		active:    make(map[string]*ActiveRun),
		counts:    make(map[string]int64),
		exitCodes: make(map[int]int64),
		durations: tdigest.NewWithCompression(100),
	}
}

// StartTime returns when the aggregator was created.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// ActiveCount returns the number of in-flight runs.
func (a *Aggregator) ActiveCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.active)
}

// RunStarted registers an in-flight run.
func (a *Aggregator) RunStarted(processID, analyzer string) {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.starts++
	a.active[processID] = &ActiveRun{
		ProcessID: processID,
		Analyzer:  analyzer,
		StartedAt: now,
		LastEvent: now,
	}
}

// Progress applies a translated progress marker to an in-flight run.
// Markers for unknown runs are dropped: the pipeline is asynchronous
// and can deliver a marker after its run has already resolved.
func (a *Aggregator) Progress(processID, message string, increment int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, ok := a.active[processID]
	if !ok {
		return
	}

	run.Percent += increment
	if run.Percent > 100 {
		run.Percent = 100
	}
	if run.Percent < 0 {
		run.Percent = 0
	}
	if message != "" {
		run.Message = message
	}
	run.LastEvent = time.Now()
}

// RecordRun resolves a run: the in-flight entry is removed and the
// record is folded into the session totals.
func (a *Aggregator) RecordRun(rec Record) {
	spawned := rec.Result != ResultSpawn

	a.mu.Lock()
	delete(a.active, rec.ProcessID)
	a.counts[rec.Result]++
	a.completed++
	a.stdoutBytes += int64(rec.StdoutBytes)
	a.stderrBytes += int64(rec.StderrBytes)
	if rec.SlowShutdown {
		a.slowShutdowns++
	}
	if spawned {
		a.exitCodes[rec.ExitCode]++
	}
	a.mu.Unlock()

	// Spawn failures never ran, so they stay out of the duration
	// distribution.
	if !spawned {
		return
	}

	a.durationsMu.Lock()
	a.durations.Add(float64(rec.Elapsed.Nanoseconds()), 1)
	if a.measured == 0 || rec.Elapsed < a.minElapsed {
		a.minElapsed = rec.Elapsed
	}
	if rec.Elapsed > a.maxElapsed {
		a.maxElapsed = rec.Elapsed
	}
	a.sumElapsed += rec.Elapsed
	a.measured++
	a.durationsMu.Unlock()
}

// Snapshot builds a point-in-time view. Safe to call concurrently with
// recording.
func (a *Aggregator) Snapshot() *SessionStats {
	now := time.Now()

	a.mu.RLock()
	s := &SessionStats{
		Timestamp:        now,
		Elapsed:          now.Sub(a.startTime),
		ActiveRuns:       make([]ActiveRun, 0, len(a.active)),
		TotalStarts:      a.starts,
		TotalCompleted:   a.completed,
		ResultCounts:     make(map[string]int64, len(a.counts)),
		ExitCodes:        make(map[int]int64, len(a.exitCodes)),
		SlowShutdowns:    a.slowShutdowns,
		TotalStdoutBytes: a.stdoutBytes,
		TotalStderrBytes: a.stderrBytes,
	}
	for result, n := range a.counts {
		s.ResultCounts[result] = n
	}
	for code, n := range a.exitCodes {
		s.ExitCodes[code] = n
	}
	for _, run := range a.active {
		s.ActiveRuns = append(s.ActiveRuns, *run)
	}
	a.mu.RUnlock()

	sort.Slice(s.ActiveRuns, func(i, j int) bool {
		if s.ActiveRuns[i].StartedAt.Equal(s.ActiveRuns[j].StartedAt) {
			return s.ActiveRuns[i].ProcessID < s.ActiveRuns[j].ProcessID
		}
		return s.ActiveRuns[i].StartedAt.Before(s.ActiveRuns[j].StartedAt)
	})

	a.durationsMu.Lock()
	if a.measured > 0 {
		s.DurationP50 = time.Duration(a.durations.Quantile(0.50))
		s.DurationP90 = time.Duration(a.durations.Quantile(0.90))
		s.DurationP99 = time.Duration(a.durations.Quantile(0.99))
		s.DurationMin = a.minElapsed
		s.DurationMax = a.maxElapsed
		s.DurationAvg = a.sumElapsed / time.Duration(a.measured)
	}
	a.durationsMu.Unlock()

	return s
}
