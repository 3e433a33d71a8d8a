package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/accelprof/dispatch-profiler/internal/engine"
)

// Context is one in-flight profiling session tied to a dispatch.
//
// Index is assigned once at admission and never changes. The remaining
// fields are populated by the dispatch path before Activate and are not
// touched again until the entry is claimed for dumping.
type Context struct {
	Index uint32

	KernelName  string
	QueueIndex  uint64
	DeviceIndex uint32
	Record      *engine.Record

	Features []engine.Feature
	Session  engine.Session
	Group    engine.Group

	// valid is guarded by the registry mutex. False before Activate and
	// after a claim; a claimed entry is never processed twice.
	valid bool
}

// ClaimStatus is the outcome of a Claim.
type ClaimStatus int

const (
	// Claimed: the caller now owns the dump of this entry.
	Claimed ClaimStatus = iota
	// NotReady: the dispatch's timing record is not finalized yet; the
	// entry stays registered untouched.
	NotReady
	// Retired: no claimable entry for this index (absent, not yet
	// activated, or already claimed by another caller).
	Retired
)

// Registry stores in-flight profiling contexts keyed by dispatch index.
//
// One exclusive mutex guards the entry map together with the sequence and
// collected counters, so index assignment and insertion are atomic with
// respect to each other. Collaborator-engine calls never run under this
// mutex; claiming an entry transfers dump ownership to a single caller.
type Registry struct {
	mu        sync.Mutex
	entries   map[uint32]*Context
	sequence  uint32
	collected uint32
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[uint32]*Context),
	}
}

// Admit advances the sequence counter for one observed dispatch and, if
// accept holds for the dispatch's sequence value, inserts a new Context at
// that index. The counter advances whether or not the dispatch is
// accepted: it counts dispatches observed, not dispatches profiled.
//
// The returned Context is inactive until Activate; completions and drains
// treat it as retired until then.
func (r *Registry) Admit(accept func(seq uint32) bool) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.sequence
	r.sequence++

	if !accept(index) {
		return nil, false
	}

	if _, exists := r.entries[index]; exists {
		// Never expected: the sequence counter only moves forward.
		panic(fmt.Sprintf("context registry corruption, index repeated %d", index))
	}

	entry := &Context{Index: index}
	r.entries[index] = entry
	return entry, true
}

// Activate marks an admitted entry ready for completion processing. Called
// once the dispatch path has populated the entry.
func (r *Registry) Activate(entry *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.valid = true
}

// Lookup returns the entry at index, or nil if absent.
func (r *Registry) Lookup(index uint32) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[index]
}

// Claim resolves a completion notification for index. On Claimed the entry
// has been marked invalid and counted as collected; the caller must dump
// it and then Release it. NotReady leaves the entry registered for a later
// retry. Retired means there is nothing left to do for this index.
func (r *Registry) Claim(index uint32) (*Context, ClaimStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[index]
	if entry == nil || !entry.valid {
		return nil, Retired
	}
	if entry.Record != nil && entry.Record.Complete.Load() == 0 {
		return nil, NotReady
	}

	entry.valid = false
	r.collected++
	return entry, Claimed
}

// Release removes the entry at index. Releasing an absent index is a
// consistency violation and is reported, never silently ignored.
func (r *Registry) Release(index uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[index]; !ok {
		return fmt.Errorf("releasing unregistered context %d", index)
	}
	delete(r.entries, index)
	return nil
}

// Indices returns a sorted snapshot of all registered indices. Used by the
// shutdown drain to visit every entry exactly once.
func (r *Registry) Indices() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	indices := make([]uint32, 0, len(r.entries))
	for index := range r.entries {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sequence reports the number of dispatches observed so far.
func (r *Registry) Sequence() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

// Collected reports the number of contexts claimed for dumping.
func (r *Registry) Collected() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collected
}
