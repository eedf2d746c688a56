package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single stderr line before truncation.
	MaxLineLength = 4096

	// MaxRecentLines is the number of stderr lines kept for the dashboard
	// and exit summary.
	MaxRecentLines = 100
)

// Line is one stderr line attributed to the process that wrote it.
type Line struct {
	ProcessID string
	Text      string
}

// Reporter turns analyzer stderr chunks into leveled log events and keeps
// a bounded ring of recent lines. Analyzers share one Reporter; chunks
// arrive from the per-process stream readers and are reassembled into
// lines here.
type Reporter struct {
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	pending map[string][]byte // per-process partial line
	ring    []Line
	ringIdx int
}

// NewReporter creates a stderr reporter logging through the given logger.
func NewReporter(logger *slog.Logger, verbose bool) *Reporter {
	return &Reporter{
		logger:  logger,
		verbose: verbose,
		pending: make(map[string][]byte),
		ring:    make([]Line, MaxRecentLines),
	}
}

// Feed consumes a raw stderr chunk for one process. Complete lines are
// classified and logged; a trailing partial line is held until the next
// chunk or Flush.
func (r *Reporter) Feed(processID string, chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	var complete []string

	r.mu.Lock()
	buf := append(r.pending[processID], chunk...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		complete = append(complete, truncateLine(strings.TrimSuffix(string(buf[:i]), "\r")))
		buf = buf[i+1:]
	}

	// A stream that never emits a newline must not grow the pending
	// buffer without bound.
	if len(buf) > MaxLineLength {
		complete = append(complete, truncateLine(string(buf)))
		buf = nil
	}

	if len(buf) > 0 {
		r.pending[processID] = buf
	} else {
		delete(r.pending, processID)
	}

	for _, line := range complete {
		r.remember(processID, line)
	}
	r.mu.Unlock()

	for _, line := range complete {
		r.logLine(processID, line)
	}
}

// Flush emits any held partial line for the process and drops its
// reassembly state. Call after the process exits.
func (r *Reporter) Flush(processID string) {
	r.mu.Lock()
	buf := r.pending[processID]
	delete(r.pending, processID)

	var line string
	if len(buf) > 0 {
		line = truncateLine(strings.TrimSuffix(string(buf), "\r"))
		r.remember(processID, line)
	}
	r.mu.Unlock()

	if line != "" {
		r.logLine(processID, line)
	}
}

// remember stores a line in the ring. Callers hold r.mu.
func (r *Reporter) remember(processID, line string) {
	r.ring[r.ringIdx] = Line{ProcessID: processID, Text: line}
	r.ringIdx = (r.ringIdx + 1) % len(r.ring)
}

// logLine logs the line at a level chosen from its content.
func (r *Reporter) logLine(processID, line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !r.verbose && level == slog.LevelDebug {
		return
	}

	r.logger.Log(nil, level, "analyzer_stderr",
		"process_id", processID,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	// Unhandled exception dumps and hard failures
	if strings.Contains(lower, "traceback (most recent call last)") ||
		strings.Contains(lower, "critical") ||
		strings.Contains(lower, "fatal") {
		return slog.LevelError
	}

	// Python logging ("ERROR:root:...") and exception class lines
	// ("ModuleNotFoundError: ...")
	if strings.Contains(lower, "error") {
		return slog.LevelError
	}

	if strings.Contains(lower, "warning") ||
		strings.Contains(lower, "deprecat") {
		return slog.LevelWarn
	}

	// Default to debug
	return slog.LevelDebug
}

// truncateLine caps a single line at MaxLineLength.
func truncateLine(line string) string {
	if len(line) > MaxLineLength {
		return line[:MaxLineLength] + "...(truncated)"
	}
	return line
}

// RecentLines returns up to n of the most recent stderr lines, oldest
// first.
func (r *Reporter) RecentLines(n int) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > MaxRecentLines {
		n = MaxRecentLines
	}

	lines := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.ringIdx - n + i + MaxRecentLines) % MaxRecentLines
		if r.ring[idx].ProcessID != "" {
			lines = append(lines, r.ring[idx])
		}
	}

	return lines
}

// ErrorPatterns are common analyzer failure markers extracted for the
// exit summary.
var ErrorPatterns = []string{
	"Traceback",
	"ModuleNotFoundError",
	"ImportError",
	"SyntaxError",
	"FileNotFoundError",
	"PermissionError",
	"MemoryError",
	"JSONDecodeError",
	"TimeoutError",
}

// CountErrors counts occurrences of error patterns in the ring.
func (r *Reporter) CountErrors() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)

	for _, l := range r.ring {
		if l.ProcessID == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(l.Text, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
