// Package registry tracks live analyzer processes between spawn and reaping.
package registry

// State describes where a tracked process is in its lifetime.
type State int

const (
	// StateRunning indicates the process is alive and no terminal
	// event has been claimed for it.
	StateRunning State = iota

	// StateTerminating indicates a terminal cause has been claimed
	// and the process is being shut down.
	StateTerminating
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Cause identifies the terminal event that ended a process's run.
// Exactly one cause wins per process; later claims are no-ops.
type Cause int32

const (
	// CauseNone means no terminal event has been claimed yet.
	CauseNone Cause = iota

	// CauseExit means the process exited on its own.
	CauseExit

	// CauseTimeout means the run exceeded its time limit.
	CauseTimeout

	// CauseCancel means a caller asked for the run to stop.
	CauseCancel
)

// String returns a human-readable name for the cause.
func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseExit:
		return "exit"
	case CauseTimeout:
		return "timeout"
	case CauseCancel:
		return "cancel"
	default:
		return "unknown"
	}
}
