// Package capture accumulates external process output and parses the
// final stdout buffer as a single JSON document.
package capture

import (
	"fmt"
	"strings"
	"sync"
)

// Buffers accumulates the stdout and stderr streams of one process.
// Reader goroutines feed it concurrently; every byte is retained
// verbatim until the run's outcome is resolved. Stdout is parsed at
// finalization, stderr is kept as opaque diagnostic text.
type Buffers struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
}

// NewBuffers returns empty output buffers for one run.
func NewBuffers() *Buffers {
	return &Buffers{}
}

// WriteStdout appends a stdout chunk.
func (b *Buffers) WriteStdout(p []byte) {
	b.mu.Lock()
	b.stdout.Write(p)
	b.mu.Unlock()
}

// WriteStderr appends a stderr chunk.
func (b *Buffers) WriteStderr(p []byte) {
	b.mu.Lock()
	b.stderr.Write(p)
	b.mu.Unlock()
}

// Stdout returns the accumulated stdout bytes.
func (b *Buffers) Stdout() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []byte(b.stdout.String())
}

// Stderr returns the accumulated stderr text.
func (b *Buffers) Stderr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stderr.String()
}

// StdoutLen returns the number of stdout bytes accumulated so far.
func (b *Buffers) StdoutLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stdout.Len()
}

// StderrLen returns the number of stderr bytes accumulated so far.
func (b *Buffers) StderrLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stderr.Len()
}

// DefaultExcerptLimit bounds output excerpts surfaced in error messages.
const DefaultExcerptLimit = 400

// Excerpt bounds s for inclusion in an error message or log line. The
// full text stays in the run's buffers; only the surfaced copy is cut.
func Excerpt(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultExcerptLimit
	}
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("... (truncated, %d more bytes)", len(s)-limit)
}
