package completion

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu      sync.Mutex
	indices []uint32
}

func (h *recordingHandler) OnGroupComplete(index uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indices = append(h.indices, index)
	return true
}

func (h *recordingHandler) seen() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint32(nil), h.indices...)
}

func TestStream_DeliversInOrder(t *testing.T) {
	ch := make(chan uint32, 3)
	handler := &recordingHandler{}
	s := New(ch, handler)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ch <- 2
	ch <- 0
	ch <- 1
	close(ch)

	deadline := time.After(2 * time.Second)
	for len(handler.seen()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, delivered %v", handler.seen())
		case <-time.After(5 * time.Millisecond):
		}
	}

	got := handler.seen()
	want := []uint32{2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStream_Stop(t *testing.T) {
	ch := make(chan uint32)
	s := New(ch, &recordingHandler{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestStream_ContextCancel(t *testing.T) {
	ch := make(chan uint32)
	s := New(ch, &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit on context cancellation")
	}
}
