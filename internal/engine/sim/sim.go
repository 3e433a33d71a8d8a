// Package sim is a deterministic in-process implementation of the engine
// boundary. The replay command runs against it, and it doubles as the
// reference for wiring a real runtime: counter values are derived from
// feature names, trace payloads are synthesized length-prefixed chunks.
package sim

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/trace"
)

// Engine is a simulated counter/trace engine.
type Engine struct {
	mu         sync.Mutex
	lastErr    string
	openErr    error
	chunkSizes []int
	open       int
}

// Option configures the simulated engine.
type Option func(*Engine)

// WithChunkSizes sets the synthesized trace chunk sizes per session.
func WithChunkSizes(sizes ...int) Option {
	return func(e *Engine) { e.chunkSizes = sizes }
}

// WithOpenError makes every Open fail, for exercising the fatal path.
func WithOpenError(err error) Option {
	return func(e *Engine) { e.openErr = err }
}

// New creates a simulated engine.
func New(opts ...Option) *Engine {
	e := &Engine{chunkSizes: []int{32, 16}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open starts a session for the given features.
func (e *Engine) Open(device uint32, features []engine.Feature) (engine.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openErr != nil {
		e.lastErr = e.openErr.Error()
		return nil, e.openErr
	}

	chunks := make([][]byte, len(e.chunkSizes))
	for i, size := range e.chunkSizes {
		chunks[i] = synthChunk(device, uint32(i), size)
	}

	e.open++
	return &session{eng: e, device: device, features: features, chunks: chunks}, nil
}

// ErrorString describes the last error for diagnostics.
func (e *Engine) ErrorString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == "" {
		return "no error"
	}
	return e.lastErr
}

// OpenSessions reports sessions opened and not yet closed.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

type session struct {
	eng      *Engine
	device   uint32
	features []engine.Feature
	chunks   [][]byte

	mu      sync.Mutex
	results []engine.Result
	closed  bool
}

func (s *session) GroupCount() (uint32, error) {
	return 1, nil
}

func (s *session) Group(i uint32) (engine.Group, error) {
	if i != 0 {
		return nil, fmt.Errorf("group %d out of range", i)
	}
	return &group{sess: s}, nil
}

// GetMetrics resolves per-feature results in place. Counter values are
// stable across runs: FNV of the feature name mixed with the device index.
func (s *session) GetMetrics() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session closed")
	}

	s.results = make([]engine.Result, len(s.features))
	for i, feature := range s.features {
		switch feature.Kind {
		case engine.KindMetric:
			s.results[i] = engine.Result{
				Kind:  engine.DataUint64,
				Value: counterValue(feature.Name, s.device),
			}
		case engine.KindTrace:
			result := engine.Result{Kind: engine.DataBytes}
			if feature.CopyData {
				var total uint64
				for _, c := range s.chunks {
					total += uint64(len(c))
				}
				result.Trace = &engine.TraceBuffer{
					Data:          trace.EncodeChunks(s.chunks),
					Capacity:      total,
					InstanceCount: uint32(len(s.chunks)),
				}
			}
			s.results[i] = result
		}
	}
	return nil
}

func (s *session) Results() []engine.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func (s *session) IterateTraceChunks(fn engine.TraceChunkFunc) error {
	s.mu.Lock()
	chunks := s.chunks
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return errors.New("session closed")
	}
	for i, data := range chunks {
		if err := fn(engine.TraceChunk{Index: uint32(i), Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session already closed")
	}
	s.closed = true

	s.eng.mu.Lock()
	s.eng.open--
	s.eng.mu.Unlock()
	return nil
}

type group struct {
	sess *session
}

func (g *group) RefreshData() error {
	g.sess.mu.Lock()
	defer g.sess.mu.Unlock()
	if g.sess.closed {
		return errors.New("session closed")
	}
	return nil
}

func (g *group) Session() engine.Session {
	return g.sess
}

func counterValue(name string, device uint32) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()%1_000_000 + uint64(device)
}

func synthChunk(device, index uint32, size int) []byte {
	data := make([]byte, size)
	seed := byte(device*31 + index*17)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}
