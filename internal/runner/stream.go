package runner

import (
	"io"
)

// readChunkSize is the read granularity for process output pipes.
const readChunkSize = 32 * 1024

// streamTap drains one process output stream until EOF. Every chunk
// lands verbatim in store; feed, when set, sees the same bytes for
// advisory line scanning. Line reassembly is the feeder's problem, so
// the tap never re-slices or copies.
type streamTap struct {
	r     io.Reader
	store func(p []byte)
	feed  func(p []byte)
}

func newStreamTap(r io.Reader, store, feed func(p []byte)) *streamTap {
	return &streamTap{
		r:     r,
		store: store,
		feed:  feed,
	}
}

// run blocks until the stream is exhausted. The pipe returns EOF when
// the process group releases its write end; read errors end the tap
// the same way, and the exit path reports the actual failure.
func (t *streamTap) run() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := t.r.Read(buf)
		if n > 0 {
			t.store(buf[:n])
			if t.feed != nil {
				t.feed(buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}
