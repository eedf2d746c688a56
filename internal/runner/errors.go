package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/randomizedcoder/go-analysis-harness/internal/capture"
)

// Kind classifies why an analyzer run failed.
type Kind int

const (
	// KindSpawn means the process could not be started at all.
	KindSpawn Kind = iota

	// KindTimeout means the run exceeded its deadline.
	KindTimeout

	// KindCancelled means a caller stopped the run.
	KindCancelled

	// KindNonZeroExit means the process ran and exited with a failure
	// code.
	KindNonZeroExit

	// KindParse means the process exited cleanly but its stdout was
	// not a single well-formed JSON document.
	KindParse
)

// String returns a short snake_case name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindNonZeroExit:
		return "nonzero_exit"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// ExecError describes a failed analyzer run. Stderr holds the full
// captured stream; Error surfaces only a bounded excerpt of it.
type ExecError struct {
	// Kind classifies the failure.
	Kind Kind

	// Analyzer is the short name of the invocation, for messages.
	Analyzer string

	// ProcessID identifies the run, when a process was spawned.
	ProcessID string

	// ExitCode is the process exit status when known, or -1 when the
	// process had not exited by the time the outcome resolved.
	ExitCode int

	// Stderr is the complete captured stderr stream.
	Stderr string

	// Elapsed is the wall-clock duration from spawn to resolution.
	Elapsed time.Duration

	// Err is the underlying error, if any.
	Err error
}

// Error renders a single-line description with a bounded stderr
// excerpt. Callers needing the full stream read the Stderr field.
func (e *ExecError) Error() string {
	switch e.Kind {
	case KindSpawn:
		return fmt.Sprintf("%s: spawn failed: %v", e.Analyzer, e.Err)
	case KindTimeout:
		return withExcerpt(
			fmt.Sprintf("%s: timed out after %s", e.Analyzer, e.Elapsed.Round(time.Millisecond)),
			e.Stderr,
		)
	case KindCancelled:
		return withExcerpt(
			fmt.Sprintf("%s: cancelled after %s", e.Analyzer, e.Elapsed.Round(time.Millisecond)),
			e.Stderr,
		)
	case KindNonZeroExit:
		return withExcerpt(
			fmt.Sprintf("%s: exit status %d", e.Analyzer, e.ExitCode),
			e.Stderr,
		)
	case KindParse:
		return fmt.Sprintf("%s: unusable result: %v", e.Analyzer, e.Err)
	default:
		return fmt.Sprintf("%s: run failed: %v", e.Analyzer, e.Err)
	}
}

// Unwrap exposes the underlying error for errors.Is and errors.As.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// AsExecError unwraps err to an *ExecError if one is in the chain.
func AsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

func withExcerpt(msg, stderr string) string {
	excerpt := capture.Excerpt(stderr, capture.DefaultExcerptLimit)
	if excerpt == "" {
		return msg
	}
	return msg + ": " + excerpt
}

// Report is the outcome of a successful analyzer run.
type Report struct {
	// ProcessID identifies the run in logs and progress events.
	ProcessID string

	// Doc is the parsed stdout document.
	Doc *capture.Document

	// Stderr is the captured diagnostic stream. Analyzers commonly
	// write progress noise there even on success.
	Stderr string

	// StdoutBytes is the size of the raw result before parsing.
	StdoutBytes int

	// Elapsed is the wall-clock duration from spawn to reaping.
	Elapsed time.Duration
}
