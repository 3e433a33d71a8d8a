// Package registry tracks in-flight profiling contexts keyed by dispatch
// sequence number.
//
// Lifecycle of an entry:
//
//	Admit    - sequence value assigned, entry inserted (inactive)
//	Activate - dispatch path finished populating the entry
//	Claim    - a completion (or the shutdown drain) takes dump ownership;
//	           the entry is marked invalid and counted as collected
//	Release  - entry erased after successful serialization
//
// A given index appears in the registry at most once, is claimed at most
// once, and is released exactly once. The sequence counter advances for
// every observed dispatch, including rejected ones.
package registry
