package engine

import "sync/atomic"

// Record is the timing record the runtime attaches to a dispatch. The
// runtime finalizes it asynchronously: Complete stays zero until the
// dispatch has fully retired, and the other fields are published before
// the store to Complete.
type Record struct {
	Dispatch uint64
	Begin    uint64
	End      uint64
	Complete atomic.Uint64
}

// Dispatch describes one kernel-launch event delivered by the runtime's
// queue subsystem.
type Dispatch struct {
	KernelName  string
	QueueIndex  uint64
	DeviceIndex uint32
	// Record may be nil, or may still be unfinalized when a completion
	// notification for this dispatch arrives.
	Record *Record
}
