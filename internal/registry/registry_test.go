package registry

import (
	"sync"
	"testing"

	"github.com/accelprof/dispatch-profiler/internal/engine"
)

func acceptAll(uint32) bool { return true }

func TestRegistry_ConcurrentAdmit(t *testing.T) {
	const n = 100

	r := New()
	indices := make(chan uint32, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, ok := r.Admit(acceptAll)
			if !ok {
				t.Error("Admit() rejected with accept-all filter")
				return
			}
			indices <- entry.Index
		}()
	}
	wg.Wait()
	close(indices)

	seen := make(map[uint32]bool)
	for index := range indices {
		if seen[index] {
			t.Errorf("index %d assigned twice", index)
		}
		seen[index] = true
	}

	// Exactly {0, ..., n-1}: no duplicates, no gaps.
	for i := uint32(0); i < n; i++ {
		if !seen[i] {
			t.Errorf("index %d never assigned", i)
		}
	}

	if got := r.Sequence(); got != n {
		t.Errorf("Sequence() = %d, want %d", got, n)
	}
}

func TestRegistry_RejectAdvancesSequence(t *testing.T) {
	r := New()

	if _, ok := r.Admit(func(uint32) bool { return false }); ok {
		t.Fatal("Admit() accepted with reject-all filter")
	}
	if got := r.Sequence(); got != 1 {
		t.Errorf("Sequence() after reject = %d, want 1", got)
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len() after reject = %d, want 0", got)
	}

	entry, ok := r.Admit(acceptAll)
	if !ok {
		t.Fatal("Admit() rejected")
	}
	if entry.Index != 1 {
		t.Errorf("accepted entry index = %d, want 1", entry.Index)
	}
}

func TestRegistry_ReleaseRemovesEntry(t *testing.T) {
	r := New()
	entry, _ := r.Admit(acceptAll)
	r.Activate(entry)

	if err := r.Release(entry.Index); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if got := r.Lookup(entry.Index); got != nil {
		t.Error("Lookup() after Release() should return nil")
	}

	// A second release is a consistency violation, never silently ignored.
	if err := r.Release(entry.Index); err == nil {
		t.Error("second Release() should be rejected")
	}
}

func TestRegistry_ClaimInactiveEntry(t *testing.T) {
	r := New()
	entry, _ := r.Admit(acceptAll)

	// Not yet activated: a completion racing the dispatch path sees it
	// as retired.
	if _, status := r.Claim(entry.Index); status != Retired {
		t.Errorf("Claim() before Activate = %v, want Retired", status)
	}
}

func TestRegistry_ClaimNotReady(t *testing.T) {
	r := New()
	entry, _ := r.Admit(acceptAll)
	entry.Record = &engine.Record{Dispatch: 100, Begin: 110, End: 120}
	r.Activate(entry)

	// Timing record not finalized: entry stays registered, nothing counted.
	if _, status := r.Claim(entry.Index); status != NotReady {
		t.Errorf("Claim() with unfinalized record = %v, want NotReady", status)
	}
	if got := r.Collected(); got != 0 {
		t.Errorf("Collected() after not-ready claim = %d, want 0", got)
	}
	if got := r.Lookup(entry.Index); got == nil {
		t.Error("entry should stay registered after not-ready claim")
	}

	// Finalizing the record makes the claim succeed.
	entry.Record.Complete.Store(130)
	claimed, status := r.Claim(entry.Index)
	if status != Claimed {
		t.Fatalf("Claim() after finalize = %v, want Claimed", status)
	}
	if claimed != entry {
		t.Error("Claim() returned a different entry")
	}
	if got := r.Collected(); got != 1 {
		t.Errorf("Collected() = %d, want 1", got)
	}
}

func TestRegistry_ClaimAtMostOnce(t *testing.T) {
	const workers = 8

	r := New()
	entry, _ := r.Admit(acceptAll)
	r.Activate(entry)

	var wg sync.WaitGroup
	claims := make(chan ClaimStatus, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, status := r.Claim(entry.Index)
			claims <- status
		}()
	}
	wg.Wait()
	close(claims)

	var claimed, retired int
	for status := range claims {
		switch status {
		case Claimed:
			claimed++
		case Retired:
			retired++
		default:
			t.Errorf("unexpected claim status %v", status)
		}
	}
	if claimed != 1 {
		t.Errorf("entry claimed %d times, want exactly once", claimed)
	}
	if retired != workers-1 {
		t.Errorf("retired = %d, want %d", retired, workers-1)
	}
	if got := r.Collected(); got != 1 {
		t.Errorf("Collected() = %d, want 1", got)
	}
}

func TestRegistry_Indices(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		entry, _ := r.Admit(acceptAll)
		r.Activate(entry)
	}
	if err := r.Release(2); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	got := r.Indices()
	want := []uint32{0, 1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Indices() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Indices()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
