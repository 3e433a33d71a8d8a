// Package profiler coordinates the profiling-context lifecycle.
//
// Data flow:
//
//	dispatch event ──→ filter ──→ registry.Admit ──→ engine.Open
//	                                  │
//	completion notification ──→ registry.Claim ──→ serialize ──→ release
//	                                  │
//	detach ──→ Drain (force-visit every remaining entry once)
//
// The registry mutex guards only counter and map mutation. A completion
// claims its entry under that mutex and performs all collaborator-engine
// calls and serialization outside it; the claim guarantees at-most-once
// dumping under concurrent dispatches, concurrent completions, and the
// shutdown drain.
package profiler
