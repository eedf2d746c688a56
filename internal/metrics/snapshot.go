package metrics

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is a point-in-time readback of the harness series from a
// registry. The session close-out reports from it, so the numbers
// logged at exit are exactly the numbers a scraper would have seen.
type Snapshot struct {
	RunsStarted   int64
	RunsCompleted map[string]int64
	ActiveRuns    int
	SlowShutdowns int64

	// DurationCount and DurationSum come from the run duration
	// histogram; DurationSum is in seconds.
	DurationCount uint64
	DurationSum   float64

	ProgressEvents  map[string]int64
	ProgressDropped int64

	GuardCalls      int64
	GuardExecutions int64
	GuardAttached   int64
}

// TotalCompleted sums completed runs across all results.
func (s *Snapshot) TotalCompleted() int64 {
	var total int64
	for _, n := range s.RunsCompleted {
		total += n
	}
	return total
}

// TakeSnapshot gathers g and extracts the harness metric families. A
// nil gatherer reads the default registry.
func TakeSnapshot(g prometheus.Gatherer) (*Snapshot, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}

	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	s := &Snapshot{
		RunsStarted:     int64(counterValue(byName["harness_runs_started_total"])),
		RunsCompleted:   labeledCounterValues(byName["harness_runs_completed_total"], "result"),
		ActiveRuns:      int(gaugeValue(byName["harness_active_runs"])),
		SlowShutdowns:   int64(counterValue(byName["harness_slow_shutdowns_total"])),
		ProgressEvents:  labeledCounterValues(byName["harness_progress_events_total"], "kind"),
		ProgressDropped: int64(counterValue(byName["harness_progress_dropped_total"])),
		GuardCalls:      int64(counterValue(byName["harness_guard_calls_total"])),
		GuardExecutions: int64(counterValue(byName["harness_guard_executions_total"])),
		GuardAttached:   int64(counterValue(byName["harness_guard_attached_total"])),
	}

	if mf := byName["harness_run_duration_seconds"]; mf != nil && len(mf.GetMetric()) > 0 {
		h := mf.GetMetric()[0].GetHistogram()
		s.DurationCount = h.GetSampleCount()
		s.DurationSum = h.GetSampleSum()
	}

	return s, nil
}

// DumpText writes every metric family in g to w in the Prometheus text
// exposition format. One-shot sessions use this to leave a scrapeable
// record without running a server. A nil gatherer reads the default
// registry.
func DumpText(w io.Writer, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}

	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// DumpFile writes the text exposition dump to path, replacing any
// existing file.
func DumpFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics dump: %w", err)
	}

	if err := DumpText(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// counterValue returns the value of a single unlabeled counter family.
// Missing or empty families read as zero.
func counterValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

// gaugeValue returns the value of a single unlabeled gauge family.
func gaugeValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// labeledCounterValues extracts label value -> counter value for a
// family keyed by one label.
func labeledCounterValues(mf *dto.MetricFamily, label string) map[string]int64 {
	out := make(map[string]int64)
	if mf == nil {
		return out
	}

	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] = int64(m.GetCounter().GetValue())
			}
		}
	}
	return out
}
