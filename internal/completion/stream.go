// Package completion delivers group-completion notifications to a single
// logical consumer, decoupling whichever execution context the engine
// invokes from the profiler's locking discipline.
package completion

import "context"

// Handler resolves one completion notification. A false return means the
// dispatch was not ready; the producer is expected to re-notify, mirroring
// how the runtime re-invokes its completion callback.
type Handler interface {
	OnGroupComplete(index uint32) bool
}

// Stream consumes dispatch indices from a channel and hands them to a
// Handler, one at a time.
type Stream struct {
	ch      <-chan uint32
	handler Handler
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a Stream reading from ch.
func New(ch <-chan uint32, handler Handler) *Stream {
	return &Stream{
		ch:      ch,
		handler: handler,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins consuming notifications in a goroutine. It returns
// immediately; processing continues until the context is cancelled, Stop
// is called, or the channel is closed.
func (s *Stream) Start(ctx context.Context) error {
	go s.consume(ctx)
	return nil
}

// Stop signals the consumer goroutine to stop and waits for it to finish
// the in-flight notification.
func (s *Stream) Stop() error {
	close(s.stopCh)
	<-s.done
	return nil
}

func (s *Stream) consume(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case index, ok := <-s.ch:
			if !ok {
				return
			}
			s.handler.OnGroupComplete(index)
		}
	}
}
