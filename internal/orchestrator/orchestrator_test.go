package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/randomizedcoder/go-analysis-harness/internal/guard"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/runner"
	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptSpecs returns n specs with distinct scripts, so their
// fingerprints never collide.
func scriptSpecs(n int) []process.Spec {
	specs := make([]process.Spec, n)
	for i := range specs {
		specs[i] = process.NewSpec("python3", fmt.Sprintf("/opt/analyzers/a%02d.py", i))
	}
	return specs
}

// okRun resolves instantly with a report naming the analyzer.
func okRun(executions *atomic.Int64) guard.RunFunc {
	return func(ctx context.Context, spec process.Spec) (*runner.Report, error) {
		if executions != nil {
			executions.Add(1)
		}
		return &runner.Report{ProcessID: spec.Name()}, nil
	}
}

// =============================================================================
// Tests: construction
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	o := New(Config{Logger: newTestLogger()})
	if o == nil {
		t.Fatal("New returned nil")
	}
	if o.guard == nil {
		t.Error("nil Guard not replaced with a private one")
	}
	if o.run == nil {
		t.Error("nil Run not replaced with a plain runner")
	}
	if o.concurrent != DefaultConcurrent {
		t.Errorf("concurrent = %d, want %d", o.concurrent, DefaultConcurrent)
	}
	if o.stagger != nil {
		t.Error("stagger should default to nil")
	}
}

// =============================================================================
// Tests: batch execution
// =============================================================================

func TestOrchestrator_Run_Empty(t *testing.T) {
	o := New(Config{Logger: newTestLogger(), Run: okRun(nil)})

	outcomes, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("len(outcomes) = %d, want 0", len(outcomes))
	}
}

func TestOrchestrator_Run_CollectsOutcomes(t *testing.T) {
	specs := scriptSpecs(6)

	run := func(ctx context.Context, spec process.Spec) (*runner.Report, error) {
		switch spec.Script {
		case specs[2].Script:
			return nil, &runner.ExecError{
				Kind:      runner.KindTimeout,
				Analyzer:  spec.Name(),
				ProcessID: "p2",
				ExitCode:  143,
			}
		case specs[4].Script:
			return nil, &runner.ExecError{
				Kind:      runner.KindNonZeroExit,
				Analyzer:  spec.Name(),
				ProcessID: "p4",
				ExitCode:  2,
			}
		default:
			return &runner.Report{ProcessID: spec.Name()}, nil
		}
	}

	o := New(Config{Logger: newTestLogger(), Run: run, Concurrent: 3})

	outcomes, err := o.Run(context.Background(), specs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != len(specs) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(specs))
	}

	for i, out := range outcomes {
		if out.Index != i {
			t.Errorf("outcomes[%d].Index = %d", i, out.Index)
		}
		if out.Spec.Script != specs[i].Script {
			t.Errorf("outcomes[%d].Spec.Script = %q, want %q", i, out.Spec.Script, specs[i].Script)
		}
	}

	for _, i := range []int{0, 1, 3, 5} {
		if !outcomes[i].Succeeded() {
			t.Errorf("outcomes[%d] should have succeeded: %v", i, outcomes[i].Err)
		}
	}
	if got := outcomes[2].Result(); got != stats.ResultTimeout {
		t.Errorf("outcomes[2].Result() = %q, want %q", got, stats.ResultTimeout)
	}
	if got := outcomes[4].Result(); got != stats.ResultNonzeroExit {
		t.Errorf("outcomes[4].Result() = %q, want %q", got, stats.ResultNonzeroExit)
	}

	tally := Tally(outcomes)
	if tally[stats.ResultReport] != 4 || tally[stats.ResultTimeout] != 1 || tally[stats.ResultNonzeroExit] != 1 {
		t.Errorf("Tally = %v", tally)
	}
}

func TestOrchestrator_Run_ConcurrencyLimit(t *testing.T) {
	const limit = 3

	var active, peak atomic.Int64
	run := func(ctx context.Context, spec process.Spec) (*runner.Report, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return &runner.Report{ProcessID: spec.Name()}, nil
	}

	o := New(Config{Logger: newTestLogger(), Run: run, Concurrent: limit})

	outcomes, err := o.Run(context.Background(), scriptSpecs(12))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, out := range outcomes {
		if !out.Succeeded() {
			t.Errorf("outcomes[%d] failed: %v", i, out.Err)
		}
	}

	if p := peak.Load(); p > limit {
		t.Errorf("peak concurrent runs = %d, want <= %d", p, limit)
	}
	if p := peak.Load(); p < 2 {
		t.Errorf("peak concurrent runs = %d, batch never overlapped", p)
	}
}

func TestOrchestrator_Run_DeduplicatesIdenticalEntries(t *testing.T) {
	const entries = 5

	g := guard.New(newTestLogger())

	var executions atomic.Int64
	shared := &runner.Report{ProcessID: "shared"}
	run := func(ctx context.Context, spec process.Spec) (*runner.Report, error) {
		executions.Add(1)
		time.Sleep(200 * time.Millisecond)
		return shared, nil
	}

	specs := make([]process.Spec, entries)
	for i := range specs {
		specs[i] = process.NewSpec("python3", "/opt/analyzers/lint.py")
	}

	o := New(Config{Logger: newTestLogger(), Guard: g, Run: run, Concurrent: entries})

	outcomes, err := o.Run(context.Background(), specs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if executions.Load() != 1 {
		t.Errorf("executions = %d, want 1 for identical entries", executions.Load())
	}
	for i, out := range outcomes {
		if out.Err != nil {
			t.Errorf("outcomes[%d].Err = %v", i, out.Err)
		}
		if out.Report != shared {
			t.Errorf("outcomes[%d].Report = %p, want the shared %p", i, out.Report, shared)
		}
	}

	calls, execs, attached := g.Stats()
	if calls != entries || execs != 1 || attached != entries-1 {
		t.Errorf("guard Stats = (%d, %d, %d), want (%d, 1, %d)",
			calls, execs, attached, entries, entries-1)
	}
}

func TestOrchestrator_Run_ContextCancelledMidway(t *testing.T) {
	run := func(ctx context.Context, spec process.Spec) (*runner.Report, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return &runner.Report{ProcessID: spec.Name()}, nil
		case <-ctx.Done():
			return nil, &runner.ExecError{
				Kind:      runner.KindCancelled,
				Analyzer:  spec.Name(),
				ProcessID: "px",
				ExitCode:  143,
			}
		}
	}

	// Concurrent=1 serializes the batch, so cancelling partway leaves
	// a resolved head, a cancelled middle, and an unlaunched tail.
	o := New(Config{Logger: newTestLogger(), Run: run, Concurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(120*time.Millisecond, cancel)
	defer timer.Stop()

	specs := scriptSpecs(10)
	outcomes, err := o.Run(ctx, specs)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(outcomes) != len(specs) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(specs))
	}

	if !outcomes[0].Succeeded() {
		t.Errorf("outcomes[0] should have resolved before the cancel: %v", outcomes[0].Err)
	}
	if !errors.Is(outcomes[len(outcomes)-1].Err, context.Canceled) {
		t.Errorf("unlaunched tail entry error = %v, want context.Canceled", outcomes[len(outcomes)-1].Err)
	}

	for i, out := range outcomes {
		if out.Index != i {
			t.Errorf("outcomes[%d].Index = %d", i, out.Index)
		}
		if (out.Report != nil) == (out.Err != nil) {
			t.Errorf("outcomes[%d] must carry a report or an error, not both: %+v", i, out)
		}
	}

	tally := Tally(outcomes)
	if tally[stats.ResultReport] == 0 {
		t.Error("no entry resolved before the cancel")
	}
	if tally[stats.ResultCancelled] == 0 {
		t.Error("no entry recorded as cancelled")
	}
}

func TestOrchestrator_Run_StaggerPacesLaunches(t *testing.T) {
	o := New(Config{
		Logger:     newTestLogger(),
		Run:        okRun(nil),
		Concurrent: 4,
		Stagger:    NewStaggerWithSeed(10, 0, 1), // one launch per 100ms
	})

	start := time.Now()
	outcomes, err := o.Run(context.Background(), scriptSpecs(3))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, out := range outcomes {
		if !out.Succeeded() {
			t.Errorf("outcomes[%d] failed: %v", i, out.Err)
		}
	}

	// The first launch is immediate; the next two wait 100ms each.
	if elapsed < 180*time.Millisecond {
		t.Errorf("elapsed = %v, stagger did not pace the launches", elapsed)
	}
	if elapsed > 600*time.Millisecond {
		t.Errorf("elapsed = %v, staggering took far too long", elapsed)
	}
}

// =============================================================================
// Tests: outcome classification
// =============================================================================

func TestOutcome_Result(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, stats.ResultReport},
		{"timeout", &runner.ExecError{Kind: runner.KindTimeout}, stats.ResultTimeout},
		{"spawn", &runner.ExecError{Kind: runner.KindSpawn}, stats.ResultSpawn},
		{"parse", &runner.ExecError{Kind: runner.KindParse}, stats.ResultParse},
		{
			"propagated",
			&guard.PropagatedError{Op: "lint", Err: &runner.ExecError{Kind: runner.KindNonZeroExit}},
			stats.ResultNonzeroExit,
		},
		{"context_cancelled", context.Canceled, stats.ResultCancelled},
		{"context_deadline", context.DeadlineExceeded, stats.ResultCancelled},
		{"other", errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Outcome{Err: tt.err}
			if got := out.Result(); got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcome_Succeeded(t *testing.T) {
	if !(Outcome{Report: &runner.Report{}}).Succeeded() {
		t.Error("outcome with report should have succeeded")
	}
	if (Outcome{Err: errors.New("boom")}).Succeeded() {
		t.Error("outcome with error should not have succeeded")
	}
	if (Outcome{}).Succeeded() {
		t.Error("empty outcome should not count as success")
	}
}

func TestTally(t *testing.T) {
	outcomes := []Outcome{
		{Report: &runner.Report{}},
		{Report: &runner.Report{}},
		{Err: &runner.ExecError{Kind: runner.KindTimeout}},
		{Err: context.Canceled},
	}

	tally := Tally(outcomes)
	if tally[stats.ResultReport] != 2 {
		t.Errorf("report tally = %d, want 2", tally[stats.ResultReport])
	}
	if tally[stats.ResultTimeout] != 1 {
		t.Errorf("timeout tally = %d, want 1", tally[stats.ResultTimeout])
	}
	if tally[stats.ResultCancelled] != 1 {
		t.Errorf("cancelled tally = %d, want 1", tally[stats.ResultCancelled])
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkOrchestrator_Run(b *testing.B) {
	o := New(Config{Logger: newTestLogger(), Run: okRun(nil), Concurrent: 8})
	specs := scriptSpecs(32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o.Run(context.Background(), specs)
	}
}
