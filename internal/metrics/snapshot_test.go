package metrics

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric vars are package level and shared across tests in this
// binary, so snapshot assertions work on before/after deltas rather
// than absolute values.

func TestTakeSnapshot_Deltas(t *testing.T) {
	c, registry := newTestCollector(CollectorConfig{
		Version:     "1.0.0",
		Interpreter: "python3",
		Concurrent:  4,
	})

	before, err := TakeSnapshot(registry)
	if err != nil {
		t.Fatalf("TakeSnapshot before: %v", err)
	}

	c.RunStarted()
	c.RunStarted()
	c.RecordRun(RunOutcome{
		Result:      "report",
		Spawned:     true,
		Elapsed:     2 * time.Second,
		StdoutBytes: 1024,
	})
	c.RecordRun(RunOutcome{
		Result:       "timeout",
		Spawned:      true,
		Elapsed:      60 * time.Second,
		SlowShutdown: true,
	})
	c.RecordProgress("unit")
	c.RecordProgress("unit")
	c.RecordProgress("complete")
	c.RecordSession(SessionUpdate{
		GuardCalls:      5,
		GuardExecutions: 3,
		GuardAttached:   2,
		ProgressDropped: 1,
	})

	after, err := TakeSnapshot(registry)
	if err != nil {
		t.Fatalf("TakeSnapshot after: %v", err)
	}

	if got := after.RunsStarted - before.RunsStarted; got != 2 {
		t.Errorf("RunsStarted delta = %d, want 2", got)
	}
	if got := after.RunsCompleted["report"] - before.RunsCompleted["report"]; got != 1 {
		t.Errorf(`RunsCompleted["report"] delta = %d, want 1`, got)
	}
	if got := after.RunsCompleted["timeout"] - before.RunsCompleted["timeout"]; got != 1 {
		t.Errorf(`RunsCompleted["timeout"] delta = %d, want 1`, got)
	}
	if got := after.TotalCompleted() - before.TotalCompleted(); got != 2 {
		t.Errorf("TotalCompleted delta = %d, want 2", got)
	}
	if got := after.SlowShutdowns - before.SlowShutdowns; got != 1 {
		t.Errorf("SlowShutdowns delta = %d, want 1", got)
	}
	if got := after.DurationCount - before.DurationCount; got != 2 {
		t.Errorf("DurationCount delta = %d, want 2", got)
	}
	if got := after.DurationSum - before.DurationSum; got < 61.9 || got > 62.1 {
		t.Errorf("DurationSum delta = %v, want ~62", got)
	}
	if got := after.ProgressEvents["unit"] - before.ProgressEvents["unit"]; got != 2 {
		t.Errorf(`ProgressEvents["unit"] delta = %d, want 2`, got)
	}
	if got := after.GuardCalls - before.GuardCalls; got != 5 {
		t.Errorf("GuardCalls delta = %d, want 5", got)
	}
	if got := after.GuardExecutions - before.GuardExecutions; got != 3 {
		t.Errorf("GuardExecutions delta = %d, want 3", got)
	}
	if got := after.GuardAttached - before.GuardAttached; got != 2 {
		t.Errorf("GuardAttached delta = %d, want 2", got)
	}
	if got := after.ProgressDropped - before.ProgressDropped; got != 1 {
		t.Errorf("ProgressDropped delta = %d, want 1", got)
	}
	if got := after.ActiveRuns - before.ActiveRuns; got != 0 {
		t.Errorf("ActiveRuns delta = %d, want 0 after both runs resolved", got)
	}
}

func TestTakeSnapshot_EmptyRegistry(t *testing.T) {
	// A registry with no harness metrics reads back as all zeros.
	s, err := TakeSnapshot(newTestRegistry())
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}

	if s.RunsStarted != 0 {
		t.Errorf("RunsStarted = %d, want 0", s.RunsStarted)
	}
	if len(s.RunsCompleted) != 0 {
		t.Errorf("RunsCompleted = %v, want empty", s.RunsCompleted)
	}
	if s.GuardCalls != 0 {
		t.Errorf("GuardCalls = %d, want 0", s.GuardCalls)
	}
}

func TestSnapshot_TotalCompleted(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int64
		want   int64
	}{
		{"empty", map[string]int64{}, 0},
		{"single result", map[string]int64{"report": 7}, 7},
		{"mixed results", map[string]int64{"report": 5, "timeout": 2, "spawn": 1}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{RunsCompleted: tt.counts}
			if got := s.TotalCompleted(); got != tt.want {
				t.Errorf("TotalCompleted() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDumpText(t *testing.T) {
	_, registry := newTestCollector(CollectorConfig{
		Version:     "1.0.0",
		Interpreter: "python3",
		Concurrent:  4,
	})

	var buf bytes.Buffer
	if err := DumpText(&buf, registry); err != nil {
		t.Fatalf("DumpText: %v", err)
	}

	body := buf.String()
	for _, want := range []string{
		"harness_runs_started_total",
		"harness_active_runs",
		"# TYPE harness_run_duration_seconds histogram",
		`harness_info{interpreter="python3",version="1.0.0"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dump missing %q", want)
		}
	}
}

func TestDumpText_RoundTrip(t *testing.T) {
	c, registry := newTestCollector(CollectorConfig{
		Version:     "1.0.0",
		Interpreter: "python3",
		Concurrent:  4,
	})
	c.RunStarted()
	c.RecordRun(RunOutcome{Result: "report", Spawned: true, Elapsed: time.Second})

	var buf bytes.Buffer
	if err := DumpText(&buf, registry); err != nil {
		t.Fatalf("DumpText: %v", err)
	}

	// The dump must parse back with the standard text decoder.
	decoder := expfmt.NewDecoder(&buf, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		if err := decoder.Decode(mf); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("decoding dump: %v", err)
		}
		families[mf.GetName()] = mf
	}

	mf, ok := families["harness_runs_completed_total"]
	if !ok {
		t.Fatal("harness_runs_completed_total missing from decoded dump")
	}

	found := false
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "result" && lp.GetValue() == "report" {
				found = true
				if m.GetCounter().GetValue() < 1 {
					t.Errorf("report counter = %v, want >= 1", m.GetCounter().GetValue())
				}
			}
		}
	}
	if !found {
		t.Error(`no series with result="report" in decoded dump`)
	}

	if _, ok := families["harness_info"]; !ok {
		t.Error("harness_info missing from decoded dump")
	}
}

func TestDumpFile(t *testing.T) {
	_, registry := newTestCollector(CollectorConfig{
		Version:     "1.0.0",
		Interpreter: "python3",
		Concurrent:  4,
	})

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := DumpFile(path, registry); err != nil {
		t.Fatalf("DumpFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if !strings.Contains(string(data), "harness_runs_started_total") {
		t.Error("dump file missing harness_runs_started_total")
	}
}

func TestDumpFile_BadPath(t *testing.T) {
	_, registry := newTestCollector(CollectorConfig{Interpreter: "python3"})

	err := DumpFile(filepath.Join(t.TempDir(), "missing", "metrics.prom"), registry)
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
