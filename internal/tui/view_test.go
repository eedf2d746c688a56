package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-analysis-harness/internal/logging"
	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
	"github.com/randomizedcoder/go-analysis-harness/internal/timeseries"
)

// sessionFixture returns a snapshot with two active runs and a mixed
// result history.
func sessionFixture() *stats.SessionStats {
	now := time.Now()
	return &stats.SessionStats{
		Timestamp: now,
		Elapsed:   90 * time.Second,
		ActiveRuns: []stats.ActiveRun{
			{
				ProcessID: "aaaaaaaa-1111",
				Analyzer:  "scan_imports.py",
				StartedAt: now.Add(-30 * time.Second),
				Percent:   45,
				Message:   "Analyzing module core",
				LastEvent: now,
			},
			{
				ProcessID: "bbbbbbbb-2222",
				Analyzer:  "deep_audit.py",
				StartedAt: now.Add(-5 * time.Second),
				Percent:   10,
				Message:   "Starting analysis",
				LastEvent: now,
			},
		},
		TotalStarts:    10,
		TotalCompleted: 8,
		ResultCounts: map[string]int64{
			stats.ResultReport:  6,
			stats.ResultTimeout: 2,
		},
		ExitCodes:        map[int]int64{0: 6},
		TotalStdoutBytes: 150_000,
		TotalStderrBytes: 3_000,
		DurationP50:      800 * time.Millisecond,
		DurationP90:      2 * time.Second,
		DurationP99:      4 * time.Second,
		DurationMin:      200 * time.Millisecond,
		DurationMax:      5 * time.Second,
		DurationAvg:      time.Second,
	}
}

// =============================================================================
// Tests: Summary View
// =============================================================================

func TestRenderSummaryView_ActiveRuns(t *testing.T) {
	model := New(Config{Interpreter: "python3", Concurrent: 4})
	model.width = 120 // wide enough that messages are not truncated
	model.stats = sessionFixture()

	view := model.View()

	for _, want := range []string{
		"Active Analyzers",
		"scan_imports.py",
		"deep_audit.py",
		"Analyzing module core",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view missing %q", want)
		}
	}
}

func TestRenderSummaryView_SessionTotals(t *testing.T) {
	model := New(Config{Interpreter: "python3", Concurrent: 4})
	model.stats = sessionFixture()

	view := model.View()

	for _, want := range []string{
		"Session",
		"10 started, 8 completed, 2 active",
		"report 6",
		"timeout 2",
		"p50 800 ms",
		"150.00 KB",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view missing %q", want)
		}
	}
}

func TestRenderSummaryView_NoStats(t *testing.T) {
	model := New(Config{Interpreter: "python3"})

	view := model.View()

	if !strings.Contains(view, "No analyzers running.") {
		t.Error("summary view without stats should show the idle placeholder")
	}
	if strings.Contains(view, "Session") {
		t.Error("summary view without stats should omit the session panel")
	}
}

func TestRenderSummaryView_RateRows(t *testing.T) {
	completions := timeseries.NewRateTracker()
	completions.Add(5)
	events := timeseries.NewRateTracker()
	events.Add(50)

	model := New(Config{
		Interpreter:    "python3",
		CompletionRate: completions,
		ProgressRate:   events,
	})
	model.stats = sessionFixture()

	view := model.View()

	if !strings.Contains(view, "Completions:") {
		t.Error("summary view missing completions rate row")
	}
	if !strings.Contains(view, "Events:") {
		t.Error("summary view missing events rate row")
	}
}

func TestRenderSummaryView_ProgressFeed(t *testing.T) {
	model := New(Config{Interpreter: "python3"})
	model.stats = sessionFixture()

	// No feed section until events arrive
	if strings.Contains(model.View(), "Progress Feed") {
		t.Error("progress feed should be hidden with no entries")
	}

	newModel, _ := model.Update(ProgressMsg{
		Analyzer:  "scan_imports.py",
		Message:   "Found 12 modules",
		Increment: 10,
	})
	m := newModel.(Model)

	view := m.View()
	if !strings.Contains(view, "Progress Feed") {
		t.Error("progress feed section missing after event")
	}
	if !strings.Contains(view, "Found 12 modules") {
		t.Error("progress feed missing event message")
	}
	if !strings.Contains(view, "(+10)") {
		t.Error("progress feed missing increment suffix")
	}
}

func TestRenderSummaryView_ActiveRowOverflow(t *testing.T) {
	model := New(Config{Interpreter: "python3", Concurrent: 64})
	model.height = 16 // row budget floors at 3

	s := sessionFixture()
	s.ActiveRuns = nil
	now := time.Now()
	for i := 0; i < 10; i++ {
		s.ActiveRuns = append(s.ActiveRuns, stats.ActiveRun{
			ProcessID: "run",
			Analyzer:  "scan.py",
			StartedAt: now,
		})
	}
	model.stats = s

	view := model.View()
	if !strings.Contains(view, "... and 7 more") {
		t.Error("active runs table should collapse overflow rows")
	}
}

func TestRenderSummaryView_PercentCapped(t *testing.T) {
	model := New(Config{Interpreter: "python3"})
	s := sessionFixture()
	s.ActiveRuns = s.ActiveRuns[:1]
	s.ActiveRuns[0].Percent = 260

	model.stats = s

	view := model.View()
	if !strings.Contains(view, "100%") {
		t.Error("accumulated percent above 100 should render capped")
	}
	if strings.Contains(view, "260%") {
		t.Error("raw uncapped percent leaked into the view")
	}
}

// =============================================================================
// Tests: Header and Footer
// =============================================================================

func TestRenderHeader(t *testing.T) {
	model := New(Config{Interpreter: "python3"})
	model.stats = sessionFixture()

	header := model.renderHeader()

	for _, want := range []string{"go-analysis-harness", "Progress", "Active: 2", "Done: 8"} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q, got %q", want, header)
		}
	}
}

func TestRenderHeader_LossyPipeline(t *testing.T) {
	model := New(Config{
		Interpreter: "python3",
		Pipeline:    &mockPipeline{published: 900, dropped: 100},
	})

	header := model.renderHeader()
	if !strings.Contains(header, "lossy") {
		t.Errorf("header should flag a lossy pipeline, got %q", header)
	}
}

func TestRenderFooter(t *testing.T) {
	model := New(Config{Interpreter: "python3", MetricsAddr: "localhost:9090"})

	footer := model.renderFooter()

	for _, want := range []string{"q: quit", "d: toggle stderr", "python3", "localhost:9090"} {
		if !strings.Contains(footer, want) {
			t.Errorf("footer missing %q, got %q", want, footer)
		}
	}
}

func TestRenderFooter_NoMetrics(t *testing.T) {
	model := New(Config{Interpreter: "python3"})

	footer := model.renderFooter()
	if strings.Contains(footer, "Metrics") {
		t.Error("footer should omit the metrics address when disabled")
	}
}

// =============================================================================
// Tests: Stderr View
// =============================================================================

func TestRenderStderrView(t *testing.T) {
	diag := &mockDiagnostics{
		lines: []logging.Line{
			{ProcessID: "aaaaaaaa-1111", Text: "Traceback (most recent call last):"},
			{ProcessID: "aaaaaaaa-1111", Text: "ModuleNotFoundError: No module named 'foo'"},
		},
		counts: map[string]int{
			"Traceback":           1,
			"ModuleNotFoundError": 1,
		},
	}

	model := New(Config{Interpreter: "python3", Diagnostics: diag})
	model.showStderr = true

	view := model.View()

	for _, want := range []string{
		"Analyzer Stderr",
		"aaaaaaaa",
		"Traceback",
		"Failure patterns:",
		"ModuleNotFoundError×1",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("stderr view missing %q", want)
		}
	}
}

func TestRenderStderrView_Empty(t *testing.T) {
	model := New(Config{Interpreter: "python3", Diagnostics: &mockDiagnostics{}})
	model.showStderr = true

	view := model.View()
	if !strings.Contains(view, "No stderr captured yet.") {
		t.Error("stderr view missing empty placeholder")
	}
}

func TestRenderStderrView_NoSource(t *testing.T) {
	model := New(Config{Interpreter: "python3"})
	model.showStderr = true

	view := model.View()
	if !strings.Contains(view, "Stderr reporting disabled.") {
		t.Error("stderr view missing disabled placeholder")
	}
}
