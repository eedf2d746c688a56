// Package guard collapses concurrent identical analyzer invocations
// into a single run whose outcome every caller shares.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/runner"
)

// PropagatedError marks a failure that an attached caller received
// second-hand, from the one caller whose run actually executed.
// Unwrap exposes the original failure for errors.Is and errors.As.
type PropagatedError struct {
	// Op is the logical operation name the callers shared.
	Op string

	// Err is the failure produced by the executing caller's run.
	Err error
}

func (e *PropagatedError) Error() string {
	return fmt.Sprintf("%s: shared run failed: %v", e.Op, e.Err)
}

func (e *PropagatedError) Unwrap() error {
	return e.Err
}

// IsPropagated reports whether err reached its caller from someone
// else's run.
func IsPropagated(err error) bool {
	var pe *PropagatedError
	return errors.As(err, &pe)
}

// RunFunc executes one analyzer invocation. The runner's Run method
// satisfies this signature.
type RunFunc func(ctx context.Context, spec process.Spec) (*runner.Report, error)

// Guard deduplicates in-flight calls by operation name and argument
// fingerprint. Calls that arrive while an identical call is running
// attach to it instead of spawning a second process; the entry is
// removed the moment the shared run resolves, so later calls always
// run fresh. Nothing is cached.
type Guard struct {
	sf  singleflight.Group
	log *slog.Logger

	calls      atomic.Int64
	executions atomic.Int64
	attached   atomic.Int64
}

// New creates a Guard.
func New(log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{log: log}
}

// Call runs op through the guard. The process executes under the
// first caller's context; a caller that attaches later can stop
// waiting through its own context, but cannot cancel the shared run
// that way.
//
// The executing caller sees the run's outcome as-is. Attached callers
// see the same report on success, and the same failure wrapped in a
// *PropagatedError otherwise. A panic inside run resolves the entry
// as a failure instead of stranding the attached callers.
func (g *Guard) Call(ctx context.Context, op string, spec process.Spec, run RunFunc) (*runner.Report, error) {
	g.calls.Add(1)

	key := op + "\x00" + spec.Fingerprint()

	var mine bool
	ch := g.sf.DoChan(key, func() (v any, err error) {
		mine = true
		g.executions.Add(1)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic in guarded run: %v", op, r)
			}
		}()
		return run(ctx, spec)
	})

	select {
	case res := <-ch:
		// The channel receive orders the fn's write to mine before
		// this read, for executing and attached callers alike.
		if !mine {
			g.attached.Add(1)
			g.log.Debug("guard_attached",
				"op", op,
				"shared", res.Shared,
			)
		}

		if res.Err != nil {
			if !mine {
				return nil, &PropagatedError{Op: op, Err: res.Err}
			}
			return nil, res.Err
		}

		report, _ := res.Val.(*runner.Report)
		return report, nil

	case <-ctx.Done():
		// Abandons only this caller's wait. The shared run keeps
		// going for whoever remains attached.
		return nil, ctx.Err()
	}
}

// Stats returns lifetime counters: total calls, runs actually
// executed, and calls served by another caller's run.
func (g *Guard) Stats() (calls, executions, attached int64) {
	return g.calls.Load(), g.executions.Load(), g.attached.Load()
}
