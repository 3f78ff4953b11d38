package runtime

import (
	"io"
	"sync"
)

// EventStream delivers the typed events of one query turn. It is lazy,
// session-scoped and non-restartable: once Recv returns a non-nil error
// the stream is exhausted.
type EventStream struct {
	ch   chan Event
	done chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
	err        error
}

// NewEventStream creates a stream with the given buffer size.
func NewEventStream(buffer int) *EventStream {
	return &EventStream{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Recv returns the next event. It blocks until an event is available and
// returns io.EOF when the turn is complete.
func (s *EventStream) Recv() (Event, error) {
	ev, ok := <-s.ch
	if !ok {
		return nil, s.err
	}
	return ev, nil
}

// Close abandons the stream. The producer stops delivering; buffered
// events may still be received.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// Push delivers an event to the consumer. It reports false once the
// consumer has closed the stream. Producer side only.
func (s *EventStream) Push(ev Event) bool {
	select {
	case <-s.done:
		return false
	case s.ch <- ev:
		return true
	}
}

// Finish terminates the stream. A nil err finishes with io.EOF; Recv
// returns err after all delivered events are drained. Producer side only;
// no Push may follow Finish.
func (s *EventStream) Finish(err error) {
	s.finishOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		s.err = err
		close(s.ch)
	})
}
