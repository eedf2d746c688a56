package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-analysis-harness/internal/process"
)

// Handle is the live record for one spawned analyzer process.
// The runner creates it after a successful spawn and removes it before
// delivering the outcome, so lookups only ever see processes that can
// still be signalled.
type Handle struct {
	// ID is the identifier callers use to cancel this run.
	ID string

	// PID is the operating system process ID of the analyzer.
	PID int

	// Spec is the invocation this process was built from.
	Spec process.Spec

	// StartedAt is when the process was successfully spawned.
	StartedAt time.Time

	// cause records the first terminal event claimed for this process.
	cause atomic.Int32

	// terminating is closed exactly once, when a cause is claimed.
	terminating chan struct{}
}

// NewHandle creates a record for a process that has already started.
func NewHandle(spec process.Spec, pid int) *Handle {
	return &Handle{
		ID:          uuid.NewString(),
		PID:         pid,
		Spec:        spec,
		StartedAt:   time.Now(),
		terminating: make(chan struct{}),
	}
}

// Claim attempts to record c as the terminal cause for this process.
// The first claim wins and closes the terminating channel; every later
// claim, including repeated cancellations, returns false and changes
// nothing.
func (h *Handle) Claim(c Cause) bool {
	if c == CauseNone {
		return false
	}
	if !h.cause.CompareAndSwap(int32(CauseNone), int32(c)) {
		return false
	}
	close(h.terminating)
	return true
}

// Cause returns the claimed terminal cause, or CauseNone while the
// process is still running.
func (h *Handle) Cause() Cause {
	return Cause(h.cause.Load())
}

// Terminating returns a channel that is closed once a terminal cause
// has been claimed. The runner selects on it alongside process exit.
func (h *Handle) Terminating() <-chan struct{} {
	return h.terminating
}

// State reports the current lifecycle state.
func (h *Handle) State() State {
	if h.Cause() == CauseNone {
		return StateRunning
	}
	return StateTerminating
}

// Uptime returns how long the process has been running.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.StartedAt)
}

// Registry is a concurrency-safe index of live process handles.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]*Handle

	// Counters survive deregistration for end-of-run reporting.
	registered   atomic.Int64
	deregistered atomic.Int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		procs: make(map[string]*Handle),
	}
}

// Register adds a handle to the index.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	r.procs[h.ID] = h
	r.mu.Unlock()

	r.registered.Add(1)
}

// Deregister removes the handle with the given ID. It reports whether
// the handle was present, so callers may deregister without checking
// first.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	_, ok := r.procs[id]
	if ok {
		delete(r.procs, id)
	}
	r.mu.Unlock()

	if ok {
		r.deregistered.Add(1)
	}
	return ok
}

// Get returns the handle for the given ID, if it is still live.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.procs[id]
	return h, ok
}

// Len returns the number of live processes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}

// IDs returns a snapshot of the live process IDs. Iterating the
// snapshot is safe while other goroutines register and deregister.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	return ids
}

// Handles returns a snapshot of the live handles.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Handle, 0, len(r.procs))
	for _, h := range r.procs {
		handles = append(handles, h)
	}
	return handles
}

// Counts returns the lifetime totals of registrations and
// deregistrations.
func (r *Registry) Counts() (registered, deregistered int64) {
	return r.registered.Load(), r.deregistered.Load()
}
