package output

import (
	"bytes"
	"fmt"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/metrics"
	"github.com/accelprof/dispatch-profiler/internal/registry"
	"github.com/accelprof/dispatch-profiler/internal/trace"
)

// Serializer renders one claimed profiling context per call. Errors it
// returns indicate corruption or collaborator inconsistency and are fatal
// at the caller.
type Serializer struct {
	sink      *Writer
	artifacts *trace.ArtifactWriter
}

// NewSerializer creates a serializer writing to sink, with per-chunk trace
// artifacts going to artifacts (which may be disabled).
func NewSerializer(sink *Writer, artifacts *trace.ArtifactWriter) *Serializer {
	return &Serializer{sink: sink, artifacts: artifacts}
}

// Serialize writes the dispatch line and one field per feature, in
// configured feature order. Pre-copied trace buffers are consumed: their
// payload is dropped after serialization.
func (s *Serializer) Serialize(entry *registry.Context) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "dispatch[%d], queue_index(%d), kernel_name(\"%s\")",
		entry.Index, entry.QueueIndex, entry.KernelName)
	if rec := entry.Record; rec != nil {
		fmt.Fprintf(&buf, ", time(%d,%d,%d,%d)",
			rec.Dispatch, rec.Begin, rec.End, rec.Complete.Load())
	}
	buf.WriteByte('\n')

	if entry.Session != nil {
		if err := s.writeFeatures(&buf, entry); err != nil {
			return err
		}
	}

	if _, err := s.sink.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing results for dispatch %d: %w", entry.Index, err)
	}
	return nil
}

func (s *Serializer) writeFeatures(buf *bytes.Buffer, entry *registry.Context) error {
	results := entry.Session.Results()
	if len(results) != len(entry.Features) {
		return fmt.Errorf("dispatch %d: %d results for %d features",
			entry.Index, len(results), len(entry.Features))
	}

	label := trace.TruncateLabel(fmt.Sprintf("%d__%s", entry.Index, entry.KernelName))

	for i := range entry.Features {
		feature := &entry.Features[i]
		result := results[i]

		fmt.Fprintf(buf, "  %s ", feature.Name)
		switch result.Kind {
		case engine.DataUint64:
			fmt.Fprintf(buf, "(%d)\n", result.Value)

		case engine.DataBytes:
			if result.Trace != nil && feature.CopyData {
				if err := s.writeCopiedTrace(buf, label, result.Trace); err != nil {
					return fmt.Errorf("dispatch %d, feature %q: %w", entry.Index, feature.Name, err)
				}
			} else {
				if err := s.writeLazyTrace(buf, label, entry.Session); err != nil {
					return fmt.Errorf("dispatch %d, feature %q: %w", entry.Index, feature.Name, err)
				}
			}

		default:
			return fmt.Errorf("dispatch %d, feature %q: undefined data kind(%d)",
				entry.Index, feature.Name, result.Kind)
		}
	}
	return nil
}

// writeCopiedTrace demultiplexes a pre-copied payload, dumps each chunk,
// and reports the accumulated size. The source buffer is freed once
// consumed.
func (s *Serializer) writeCopiedTrace(buf *bytes.Buffer, label string, tb *engine.TraceBuffer) error {
	chunks, size, err := trace.Demux(tb.Data, tb.InstanceCount, tb.Capacity)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		if err := s.artifacts.DumpChunk(label, chunk.Index, chunk.Data); err != nil {
			return err
		}
	}

	fmt.Fprintf(buf, "size(%d)\n", size)
	metrics.TraceBytes.Add(float64(size))

	tb.Data = nil
	tb.Capacity = 0
	return nil
}

// writeLazyTrace asks the engine to iterate chunks; nothing is retained.
func (s *Serializer) writeLazyTrace(buf *bytes.Buffer, label string, sess engine.Session) error {
	buf.WriteString("(\n")
	err := sess.IterateTraceChunks(func(chunk engine.TraceChunk) error {
		fmt.Fprintf(buf, "    SE(%d) size(%d)\n", chunk.Index, len(chunk.Data))
		metrics.TraceBytes.Add(float64(len(chunk.Data)))
		return s.artifacts.DumpChunk(label, chunk.Index, chunk.Data)
	})
	if err != nil {
		return fmt.Errorf("iterating trace chunks: %w", err)
	}
	buf.WriteString("  )\n")
	return nil
}
