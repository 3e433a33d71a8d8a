// Package output renders collected profiling results to the results
// stream and to per-chunk trace artifacts.
package output

import (
	"io"
	"sync"
)

// Writer is the shared results sink. Each dispatch's output is rendered
// into a single buffer and written under the writer's mutex, so lines from
// concurrent completions never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w as the shared results sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one dispatch's rendered output atomically.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
