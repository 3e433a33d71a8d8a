// Package engine declares the boundary to the accelerator runtime's
// counter/trace collection engine. The profiler core consumes these
// interfaces and never depends on a concrete runtime.
package engine

// FeatureKind selects what a feature collects.
type FeatureKind uint32

const (
	// KindMetric is a scalar hardware counter or derived metric.
	KindMetric FeatureKind = iota
	// KindTrace is a raw execution-trace byte stream.
	KindTrace
)

// Parameter is one trace configuration knob (e.g. a token mask).
type Parameter struct {
	Name  string
	Value uint32
}

// Feature describes one requested counter or trace. The feature list is
// built once at startup and shared read-only by every profiling session.
type Feature struct {
	Name       string
	Kind       FeatureKind
	Parameters []Parameter
	// CopyData selects pre-copied trace payloads. When false the trace is
	// read lazily from the engine via IterateTraceChunks.
	CopyData bool
}

// DataKind tags the payload of a Result.
type DataKind uint32

const (
	// DataNone means no result has been produced for the feature yet.
	DataNone DataKind = iota
	// DataUint64 is a 64-bit counter value.
	DataUint64
	// DataBytes is a trace byte payload.
	DataBytes
)

// TraceBuffer holds a pre-copied trace payload: a concatenation of
// length-prefixed chunks (see the trace package for the layout).
type TraceBuffer struct {
	Data []byte
	// Capacity is the declared size of the result buffer. A decoded
	// payload larger than this indicates corruption.
	Capacity uint64
	// InstanceCount is the number of chunks in Data.
	InstanceCount uint32
}

// Result is the collected value for one feature, aligned by position with
// the feature list the session was opened with.
type Result struct {
	Kind  DataKind
	Value uint64
	Trace *TraceBuffer
}

// TraceChunk is one contiguous segment of raw trace data, associated with
// one sub-unit of the accelerator (e.g. one shader engine).
type TraceChunk struct {
	Index uint32
	Data  []byte
}

// TraceChunkFunc receives chunks during lazy trace iteration.
type TraceChunkFunc func(chunk TraceChunk) error

// Session is one open counter/trace collection configuration. Sessions are
// owned by the engine; the profiler holds an exclusive reference until Close.
type Session interface {
	// GroupCount reports the number of profiling groups the engine split
	// the feature list into.
	GroupCount() (uint32, error)
	// Group returns the i-th profiling group.
	Group(i uint32) (Group, error)
	// GetMetrics resolves scalar results for the session's features.
	GetMetrics() error
	// Results returns the per-feature results, positionally aligned with
	// the feature list passed to Open.
	Results() []Result
	// IterateTraceChunks streams trace chunks to fn without retaining a
	// copy. Used for features with CopyData == false.
	IterateTraceChunks(fn TraceChunkFunc) error
	// Close releases all engine resources held by the session.
	Close() error
}

// Group is an opaque handle to one profiling group within a session.
type Group interface {
	// RefreshData makes the group's collected data available for reading.
	RefreshData() error
	// Session returns the owning session.
	Session() Session
}

// Engine is the counter/trace collection engine surface the profiler
// consumes.
type Engine interface {
	// Open starts a collection session on a device for the given features.
	Open(device uint32, features []Feature) (Session, error)
	// ErrorString describes the engine's last error for diagnostics.
	ErrorString() string
}
