package profiler

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/filter"
	"github.com/accelprof/dispatch-profiler/internal/metrics"
	"github.com/accelprof/dispatch-profiler/internal/otel"
	"github.com/accelprof/dispatch-profiler/internal/output"
	"github.com/accelprof/dispatch-profiler/internal/registry"
)

// Config assembles a Profiler.
type Config struct {
	// Engine is the counter/trace collection engine.
	Engine engine.Engine
	// Features is the ordered feature list, shared read-only by all
	// profiling contexts. May be empty to collect timing only.
	Features []engine.Feature
	// Filter decides which dispatches get a context. Nil accepts all.
	Filter *filter.Filter
	// Serializer renders collected contexts to the results stream.
	Serializer *output.Serializer
	// Spans optionally emits one span per collected dispatch.
	Spans *otel.Emitter
	// Fatalf receives fatal diagnostics and must not return. Defaults to
	// log.Fatalf.
	Fatalf func(format string, v ...interface{})
}

// Profiler owns the profiling-context lifecycle: it admits dispatches,
// reconciles completion notifications with stored context state, and
// drains leftover contexts at detach. One Profiler is created at attach
// and closed at detach; all runtime callbacks go through it.
type Profiler struct {
	engine   engine.Engine
	features []engine.Feature
	filter   *filter.Filter
	reg      *registry.Registry
	ser      *output.Serializer
	spans    *otel.Emitter
	unloaded atomic.Bool
	fatalf   func(format string, v ...interface{})
}

// New creates a Profiler from cfg.
func New(cfg Config) (*Profiler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("profiler requires an engine")
	}
	if cfg.Serializer == nil {
		return nil, fmt.Errorf("profiler requires a serializer")
	}

	fatalf := cfg.Fatalf
	if fatalf == nil {
		fatalf = log.Fatalf
	}

	return &Profiler{
		engine:   cfg.Engine,
		features: cfg.Features,
		filter:   cfg.Filter,
		reg:      registry.New(),
		ser:      cfg.Serializer,
		spans:    cfg.Spans,
		fatalf:   fatalf,
	}, nil
}

// OnDispatch handles one kernel-dispatch event from the runtime's queue
// subsystem. The sequence counter advances for every dispatch; accepted
// dispatches get a registered context and an open collection session.
// Returns the assigned index and whether the dispatch was accepted. An
// error means the collaborator engine is in an unrecoverable state.
func (p *Profiler) OnDispatch(d *engine.Dispatch) (uint32, bool, error) {
	if p.unloaded.Load() {
		return 0, false, nil
	}

	metrics.DispatchesObserved.Inc()

	entry, accepted := p.reg.Admit(func(seq uint32) bool {
		return p.filter == nil || p.filter.Accepts(d, seq)
	})
	if !accepted {
		return 0, false, nil
	}
	metrics.DispatchesProfiled.Inc()

	entry.KernelName = d.KernelName
	entry.QueueIndex = d.QueueIndex
	entry.DeviceIndex = d.DeviceIndex
	entry.Record = d.Record

	if len(p.features) > 0 {
		sess, err := p.engine.Open(d.DeviceIndex, p.features)
		if err != nil {
			return 0, false, fmt.Errorf("opening session for dispatch %d: %w: %s",
				entry.Index, err, p.engine.ErrorString())
		}

		count, err := sess.GroupCount()
		if err != nil {
			return 0, false, fmt.Errorf("group count for dispatch %d: %w: %s",
				entry.Index, err, p.engine.ErrorString())
		}
		if count != 1 {
			return 0, false, fmt.Errorf("dispatch %d: expected a single profiling group, got %d",
				entry.Index, count)
		}

		group, err := sess.Group(0)
		if err != nil {
			return 0, false, fmt.Errorf("group 0 for dispatch %d: %w: %s",
				entry.Index, err, p.engine.ErrorString())
		}

		entry.Features = p.features
		entry.Session = sess
		entry.Group = group
	}

	p.reg.Activate(entry)
	return entry.Index, true, nil
}

// OnGroupComplete handles a completion notification for a dispatch index.
// It returns true when the notification is fully handled (dumped, or
// already retired) and the engine should stop invoking it; false when the
// dispatch's timing record is not finalized yet and the entry stays
// registered for a retry.
//
// May be invoked from any execution context, concurrently with dispatches
// and with other completions.
func (p *Profiler) OnGroupComplete(index uint32) bool {
	entry, status := p.reg.Claim(index)
	switch status {
	case registry.Retired:
		return true
	case registry.NotReady:
		metrics.CompletionNotReady.Inc()
		return false
	}

	p.dump(entry)
	return true
}

// dump serializes and retires a claimed entry. All collaborator calls run
// outside the registry lock; the claim made the caller the entry's sole
// owner. Every failure here is an unrecoverable inconsistency.
func (p *Profiler) dump(entry *registry.Context) {
	if entry.Group != nil {
		if err := entry.Group.RefreshData(); err != nil {
			p.fatalf("ERROR: refreshing group data for dispatch %d: %v: %s",
				entry.Index, err, p.engine.ErrorString())
		}
		if err := entry.Session.GetMetrics(); err != nil {
			p.fatalf("ERROR: fetching metrics for dispatch %d: %v: %s",
				entry.Index, err, p.engine.ErrorString())
		}
	}

	if err := p.ser.Serialize(entry); err != nil {
		p.fatalf("ERROR: %v", err)
	}
	metrics.ContextsCollected.Inc()

	if p.spans != nil {
		p.spans.EmitDispatch(entry)
	}
	entry.Record = nil

	if entry.Session != nil {
		if err := entry.Session.Close(); err != nil {
			p.fatalf("ERROR: closing session for dispatch %d: %v: %s",
				entry.Index, err, p.engine.ErrorString())
		}
	}

	if err := p.reg.Release(entry.Index); err != nil {
		p.fatalf("ERROR: %v", err)
	}
}

// Drain force-visits every registered context once. Ready contexts are
// dumped and released; contexts whose timing record is still unfinished
// are left registered and reported in the remaining count.
func (p *Profiler) Drain() (dumped, remaining int) {
	for _, index := range p.reg.Indices() {
		entry, status := p.reg.Claim(index)
		switch status {
		case registry.Claimed:
			p.dump(entry)
			dumped++
		case registry.NotReady:
			remaining++
		case registry.Retired:
			// Completed concurrently; nothing left to do.
		}
	}
	return dumped, remaining
}

// Close marks the profiler unloaded, drains remaining contexts, and logs
// the collection summary. Safe to call more than once.
func (p *Profiler) Close() error {
	if p.unloaded.Swap(true) {
		return nil
	}

	_, remaining := p.Drain()
	log.Printf("%d contexts collected", p.reg.Collected())
	if remaining > 0 {
		log.Printf("%d contexts left with unfinished timing data", remaining)
	}
	return nil
}

// Collected reports contexts successfully dumped.
func (p *Profiler) Collected() uint32 {
	return p.reg.Collected()
}

// Sequence reports dispatches observed.
func (p *Profiler) Sequence() uint32 {
	return p.reg.Sequence()
}

// Registered reports contexts currently in flight.
func (p *Profiler) Registered() int {
	return p.reg.Len()
}

// Lookup exposes the registry entry for an index, primarily for
// inspection in tests and tooling.
func (p *Profiler) Lookup(index uint32) *registry.Context {
	return p.reg.Lookup(index)
}
