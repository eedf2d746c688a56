// Package runner spawns analyzer processes and resolves every run to
// exactly one outcome: a parsed report or a classified failure.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-analysis-harness/internal/capture"
	"github.com/randomizedcoder/go-analysis-harness/internal/deadline"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/progress"
	"github.com/randomizedcoder/go-analysis-harness/internal/registry"
)

const (
	// DefaultTimeout bounds runs whose spec carries no deadline.
	DefaultTimeout = 60 * time.Second

	// DefaultGrace is how long a signalled process may take to exit
	// before the run is reported as a slow shutdown. The outcome
	// resolves when the grace window closes even if the process is
	// still dying.
	DefaultGrace = 5 * time.Second
)

// Callbacks contains optional hooks for run events.
type Callbacks struct {
	// OnStart is called after a process spawns and registers.
	OnStart func(processID string, pid int)

	// OnExit is called once per run with the resolved cause. The exit
	// code is -1 when the process outlived its grace window.
	OnExit func(processID string, cause registry.Cause, exitCode int, elapsed time.Duration)

	// OnStderrChunk sees raw stderr bytes as they arrive, before the
	// run resolves. Useful for live diagnostics.
	OnStderrChunk func(processID string, chunk []byte)
}

// Config holds configuration for creating a Runner.
type Config struct {
	Registry *registry.Registry
	Logger   *slog.Logger

	// DefaultTimeout applies to specs without their own deadline.
	// Zero selects DefaultTimeout.
	DefaultTimeout time.Duration

	// Grace bounds the wait between the termination signal and
	// treating the process as unresponsive. Zero selects DefaultGrace.
	Grace time.Duration

	// Progress receives advisory events scanned from stdout.
	Progress progress.Sink

	// Markers overrides the default stdout marker table.
	Markers []progress.Marker

	Callbacks Callbacks
}

// Runner spawns, tracks, signals, and reaps analyzer processes. All
// methods are safe for concurrent use; each Run call manages exactly
// one process.
type Runner struct {
	reg *registry.Registry
	log *slog.Logger

	defaultTimeout time.Duration
	grace          time.Duration

	sink    progress.Sink
	markers []progress.Marker

	callbacks Callbacks
}

// New creates a Runner with the given configuration.
func New(cfg Config) *Runner {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var sink progress.Sink = progress.NopSink{}
	if cfg.Progress != nil {
		sink = cfg.Progress
	}

	return &Runner{
		reg:            reg,
		log:            log,
		defaultTimeout: timeout,
		grace:          grace,
		sink:           sink,
		markers:        cfg.Markers,
		callbacks:      cfg.Callbacks,
	}
}

// Registry exposes the live process index.
func (r *Runner) Registry() *registry.Registry {
	return r.reg
}

// Run executes one analyzer invocation and blocks until its outcome
// resolves. On failure the returned error is an *ExecError.
//
// Cancelling ctx terminates the process and yields a cancelled
// outcome. A process that cannot be spawned is never registered, so
// there is nothing to cancel or look up for it.
func (r *Runner) Run(ctx context.Context, spec process.Spec) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ExecError{
			Kind:     KindCancelled,
			Analyzer: spec.Name(),
			ExitCode: -1,
			Err:      err,
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	cmd := process.Build(spec)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, r.spawnError(spec, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, r.spawnError(spec, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, r.spawnError(spec, err)
	}

	h := registry.NewHandle(spec, cmd.Process.Pid)
	r.reg.Register(h)

	r.log.Info("analyzer_started",
		"process_id", h.ID,
		"analyzer", spec.Name(),
		"pid", h.PID,
		"timeout", timeout.String(),
	)
	if r.callbacks.OnStart != nil {
		r.callbacks.OnStart(h.ID, h.PID)
	}

	// The deadline and the context watcher only claim the terminal
	// cause. Signalling stays on this goroutine, below.
	timer := deadline.Arm(timeout, func() {
		if h.Claim(registry.CauseTimeout) {
			r.log.Warn("deadline_exceeded",
				"process_id", h.ID,
				"pid", h.PID,
				"timeout", timeout.String(),
			)
		}
	})
	defer timer.Stop()

	stopWatch := context.AfterFunc(ctx, func() {
		h.Claim(registry.CauseCancel)
	})
	defer stopWatch()

	bufs := capture.NewBuffers()
	translator := progress.NewTranslator(r.markers)

	var taps sync.WaitGroup
	taps.Add(2)
	go func() {
		defer taps.Done()
		newStreamTap(stdout, bufs.WriteStdout, func(p []byte) {
			for _, ev := range translator.Feed(p) {
				r.sink.Publish(h.ID, ev)
			}
		}).run()
	}()
	go func() {
		defer taps.Done()
		var feed func([]byte)
		if r.callbacks.OnStderrChunk != nil {
			feed = func(p []byte) { r.callbacks.OnStderrChunk(h.ID, p) }
		}
		newStreamTap(stderr, bufs.WriteStderr, feed).run()
	}()

	// Reap only after both taps hit EOF, so a natural exit always
	// leaves the complete streams in the buffers.
	waitDone := make(chan error, 1)
	go func() {
		taps.Wait()
		waitDone <- cmd.Wait()
	}()

	var waitErr error
	exited := true
	select {
	case waitErr = <-waitDone:
		// The claim can lose to a deadline or cancellation landing at
		// the same instant; the first claimant decides the outcome.
		h.Claim(registry.CauseExit)
	case <-h.Terminating():
		r.terminate(h, cmd)
		select {
		case waitErr = <-waitDone:
		case <-time.After(r.grace):
			exited = false
			r.log.Warn("slow_shutdown",
				"process_id", h.ID,
				"pid", h.PID,
				"grace", r.grace.String(),
				"cause", h.Cause().String(),
			)
			go r.reap(h, waitDone)
		}
	}

	timer.Stop()
	elapsed := time.Since(start)
	cause := h.Cause()

	exitCode := -1
	if exited {
		exitCode = extractExitCode(waitErr)
	}

	// Deregister before the outcome is delivered, so callers never
	// observe a resolved run that is still cancellable.
	r.reg.Deregister(h.ID)

	r.log.Info("run_resolved",
		"process_id", h.ID,
		"pid", h.PID,
		"analyzer", spec.Name(),
		"cause", cause.String(),
		"exit_code", exitCode,
		"elapsed", elapsed.String(),
		"stdout_bytes", bufs.StdoutLen(),
		"stderr_bytes", bufs.StderrLen(),
	)
	if r.callbacks.OnExit != nil {
		r.callbacks.OnExit(h.ID, cause, exitCode, elapsed)
	}

	return r.finalize(h, spec, cause, exitCode, bufs, translator, elapsed)
}

// Cancel asks the process with the given ID to stop. It reports
// whether this call initiated termination; unknown IDs and repeated
// cancellations return false and do nothing.
func (r *Runner) Cancel(id string) bool {
	h, ok := r.reg.Get(id)
	if !ok {
		return false
	}
	return h.Claim(registry.CauseCancel)
}

// CancelAll cancels every live process and returns how many this call
// moved into termination. It iterates a snapshot, so runs resolving
// concurrently are skipped without error.
func (r *Runner) CancelAll() int {
	handles := r.reg.Handles()

	n := 0
	for _, h := range handles {
		if h.Claim(registry.CauseCancel) {
			n++
		}
	}

	if n > 0 {
		r.log.Info("cancel_all",
			"live", len(handles),
			"cancelled", n,
		)
	}
	return n
}

// finalize maps the claimed cause and collected output to the run's
// single outcome.
func (r *Runner) finalize(
	h *registry.Handle,
	spec process.Spec,
	cause registry.Cause,
	exitCode int,
	bufs *capture.Buffers,
	translator *progress.Translator,
	elapsed time.Duration,
) (*Report, error) {
	stderrText := bufs.Stderr()

	switch cause {
	case registry.CauseTimeout:
		return nil, &ExecError{
			Kind:      KindTimeout,
			Analyzer:  spec.Name(),
			ProcessID: h.ID,
			ExitCode:  exitCode,
			Stderr:    stderrText,
			Elapsed:   elapsed,
		}
	case registry.CauseCancel:
		return nil, &ExecError{
			Kind:      KindCancelled,
			Analyzer:  spec.Name(),
			ProcessID: h.ID,
			ExitCode:  exitCode,
			Stderr:    stderrText,
			Elapsed:   elapsed,
		}
	}

	// Natural exit: both taps have drained, so the trailing partial
	// line can be translated without racing the stdout tap.
	for _, ev := range translator.Flush() {
		r.sink.Publish(h.ID, ev)
	}

	if exitCode != 0 {
		return nil, &ExecError{
			Kind:      KindNonZeroExit,
			Analyzer:  spec.Name(),
			ProcessID: h.ID,
			ExitCode:  exitCode,
			Stderr:    stderrText,
			Elapsed:   elapsed,
		}
	}

	raw := bufs.Stdout()
	doc, err := capture.ParseDocument(raw)
	if err != nil {
		r.log.Warn("result_parse_failed",
			"process_id", h.ID,
			"analyzer", spec.Name(),
			"stdout_bytes", len(raw),
			"error", err,
		)
		return nil, &ExecError{
			Kind:      KindParse,
			Analyzer:  spec.Name(),
			ProcessID: h.ID,
			ExitCode:  0,
			Stderr:    stderrText,
			Elapsed:   elapsed,
			Err:       err,
		}
	}

	return &Report{
		ProcessID:   h.ID,
		Doc:         doc,
		Stderr:      stderrText,
		StdoutBytes: len(raw),
		Elapsed:     elapsed,
	}, nil
}

// terminate signals the whole process group so interpreter children
// die with their parent.
func (r *Runner) terminate(h *registry.Handle, cmd *exec.Cmd) {
	r.log.Debug("terminating_process_group",
		"process_id", h.ID,
		"pid", h.PID,
		"cause", h.Cause().String(),
	)

	if pgid, err := syscall.Getpgid(h.PID); err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		cmd.Process.Signal(syscall.SIGTERM)
	}
}

// reap logs the eventual exit of a process that outlived its grace
// window. The outcome has already been delivered by then.
func (r *Runner) reap(h *registry.Handle, waitDone <-chan error) {
	err := <-waitDone
	r.log.Info("stalled_analyzer_exited",
		"process_id", h.ID,
		"pid", h.PID,
		"exit_code", extractExitCode(err),
	)
}

func (r *Runner) spawnError(spec process.Spec, err error) error {
	r.log.Error("spawn_failed",
		"analyzer", spec.Name(),
		"command", spec.CommandString(),
		"error", err,
	)
	return &ExecError{
		Kind:     KindSpawn,
		Analyzer: spec.Name(),
		ExitCode: -1,
		Err:      err,
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
