package trace

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// labelLenMax caps the label portion of artifact file names. Kernel names
// from C++ workloads can be arbitrarily long once demangled.
const labelLenMax = 128

// ArtifactWriter dumps individual trace chunks to per-chunk files in an
// output directory. A writer with an empty directory is disabled and
// discards all dumps.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter returns a writer rooted at dir. An empty dir disables
// artifact output.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// Enabled reports whether chunk artifacts will be written.
func (w *ArtifactWriter) Enabled() bool {
	return w.dir != ""
}

// DumpChunk writes one chunk's bytes to thread_trace_<label>_se<chunk>.out,
// reinterpreted as 16-bit words, one 4-hex-digit line per word. A trailing
// odd byte is dropped, matching the word-granular trace format.
func (w *ArtifactWriter) DumpChunk(label string, chunk uint32, data []byte) error {
	if w.dir == "" {
		return nil
	}

	name := filepath.Join(w.dir, fmt.Sprintf("thread_trace_%s_se%d.out", TruncateLabel(label), chunk))
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating trace artifact %q: %w", name, err)
	}

	bw := bufio.NewWriter(file)
	for i := 0; i+2 <= len(data); i += 2 {
		fmt.Fprintf(bw, "%04x\n", binary.LittleEndian.Uint16(data[i:]))
	}

	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing trace artifact %q: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing trace artifact %q: %w", name, err)
	}
	return nil
}

// TruncateLabel caps a chunk label for use in artifact file names.
func TruncateLabel(label string) string {
	if len(label) > labelLenMax {
		return label[:labelLenMax]
	}
	return label
}
