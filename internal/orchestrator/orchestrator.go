// Package orchestrator runs batches of analyzer invocations through
// the call guard with bounded parallelism and optional staggered
// launches.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-analysis-harness/internal/guard"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/runner"
	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
)

// DefaultConcurrent caps simultaneous runs when the config names no
// limit.
const DefaultConcurrent = 4

// Outcome is the resolved result of one batch entry.
type Outcome struct {
	// Index is the entry's position in the submitted batch.
	Index int

	// Spec is the invocation that ran.
	Spec process.Spec

	// Report is the parsed result on success, nil otherwise.
	Report *runner.Report

	// Err is the failure, nil on success. Entries the batch never
	// launched because the context had already ended carry the
	// context's error.
	Err error
}

// Succeeded reports whether the entry produced a report.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Report != nil
}

// Result returns the accounting name for the outcome, in the same
// vocabulary the session stats use.
func (o Outcome) Result() string {
	if o.Err == nil {
		return stats.ResultReport
	}
	if ee, ok := runner.AsExecError(o.Err); ok {
		return ee.Kind.String()
	}
	if errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded) {
		return stats.ResultCancelled
	}
	return "error"
}

// Tally counts outcomes by result name.
func Tally(outcomes []Outcome) map[string]int {
	t := make(map[string]int)
	for _, o := range outcomes {
		t[o.Result()]++
	}
	return t
}

// Config holds the collaborators for an Orchestrator.
type Config struct {
	// Guard collapses identical entries that are in flight at the same
	// time. Nil creates a private guard.
	Guard *guard.Guard

	// Run executes one invocation. The harness passes the runner's Run
	// wrapped with session accounting; nil creates a plain runner.
	Run guard.RunFunc

	Logger *slog.Logger

	// Concurrent caps simultaneously executing entries. Zero or
	// negative selects DefaultConcurrent.
	Concurrent int

	// Stagger paces launches. Nil launches as fast as the concurrency
	// cap allows.
	Stagger *Stagger
}

// Orchestrator runs batches of analyzer invocations. Every entry goes
// through the call guard, so a batch that lists the same invocation
// twice performs it once and hands both entries the same report.
type Orchestrator struct {
	guard      *guard.Guard
	run        guard.RunFunc
	log        *slog.Logger
	concurrent int
	stagger    *Stagger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	g := cfg.Guard
	if g == nil {
		g = guard.New(log)
	}

	run := cfg.Run
	if run == nil {
		run = runner.New(runner.Config{Logger: log}).Run
	}

	concurrent := cfg.Concurrent
	if concurrent <= 0 {
		concurrent = DefaultConcurrent
	}

	return &Orchestrator{
		guard:      g,
		run:        run,
		log:        log,
		concurrent: concurrent,
		stagger:    cfg.Stagger,
	}
}

// Run executes every spec and blocks until all launched entries
// resolve. The returned slice always holds one outcome per spec, in
// submission order; entry failures live in the outcomes rather than
// the error. The error is non-nil only when ctx ended before every
// entry launched. In-flight entries run under ctx, so cancelling it
// resolves them as cancelled before Run returns.
func (o *Orchestrator) Run(ctx context.Context, specs []process.Spec) ([]Outcome, error) {
	outcomes := make([]Outcome, len(specs))
	if len(specs) == 0 {
		return outcomes, nil
	}

	o.log.Info("batch_starting",
		"entries", len(specs),
		"concurrent", o.concurrent,
		"staggered", o.stagger != nil,
	)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(o.concurrent)

	launched := 0
	for i, spec := range specs {
		if ctx.Err() != nil {
			break
		}

		// Pace launches after the first one.
		if o.stagger != nil && i > 0 {
			if err := o.stagger.Schedule(ctx, i); err != nil {
				break
			}
		}

		launched++
		g.Go(func() error {
			// A slot can open after cancellation; skip the run rather
			// than submit it dead on arrival.
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Index: i, Spec: spec, Err: err}
				return nil
			}

			report, err := o.guard.Call(ctx, spec.Name(), spec, o.run)
			outcomes[i] = Outcome{Index: i, Spec: spec, Report: report, Err: err}
			return nil
		})

		if (i+1)%10 == 0 || i == len(specs)-1 {
			o.log.Info("batch_progress",
				"launched", i+1,
				"entries", len(specs),
			)
		}
	}

	g.Wait()

	// Entries never launched still get an outcome, so callers can
	// render the whole batch.
	for i := launched; i < len(specs); i++ {
		outcomes[i] = Outcome{Index: i, Spec: specs[i], Err: ctx.Err()}
	}

	tally := Tally(outcomes)
	o.log.Info("batch_complete",
		"entries", len(specs),
		"succeeded", tally[stats.ResultReport],
		"failed", len(specs)-tally[stats.ResultReport],
		"elapsed", time.Since(start).String(),
	)

	if launched < len(specs) {
		return outcomes, ctx.Err()
	}
	return outcomes, nil
}
