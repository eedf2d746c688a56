package stats

import "time"

// Results a run can resolve with. These match the result label values
// on the Prometheus run counters and the failure kind names carried by
// runner errors.
const (
	ResultReport      = "report"
	ResultNonzeroExit = "nonzero_exit"
	ResultTimeout     = "timeout"
	ResultCancelled   = "cancelled"
	ResultParse       = "parse"
	ResultSpawn       = "spawn"
)

// ResultOrder fixes the display order of result rows in the exit
// summary and the dashboard.
var ResultOrder = []string{
	ResultReport,
	ResultNonzeroExit,
	ResultTimeout,
	ResultCancelled,
	ResultParse,
	ResultSpawn,
}

// Record describes one resolved analyzer run.
type Record struct {
	// ProcessID identifies the run. Empty when the process never
	// spawned.
	ProcessID string

	// Analyzer is the script the run executed.
	Analyzer string

	// Result is ResultReport on success, or the failure kind.
	Result string

	// ExitCode is the process exit code, or -1 when the process had
	// not exited by the time the run resolved.
	ExitCode int

	Elapsed     time.Duration
	StdoutBytes int
	StderrBytes int

	// SlowShutdown marks a run whose process outlived the run
	// resolution and was reaped in the background.
	SlowShutdown bool
}

// ActiveRun is the live view of an in-flight run for the dashboard.
type ActiveRun struct {
	ProcessID string
	Analyzer  string
	StartedAt time.Time

	// Percent is the accumulated progress estimate, 0-100.
	Percent int

	// Message is the most recent progress message, empty until the
	// first marker arrives.
	Message string

	LastEvent time.Time
}
