package runstate

import (
	"context"
	"io"
	"sync"
)

// EventLog is the ordered, unbounded event channel of a single run. Publishing
// never waits on readers. Every subscriber reads the full sequence from its
// starting offset, so concurrent subscribers each observe every event,
// including the terminal one, followed by closure.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	closed bool
	wake   chan struct{} // closed and replaced on every append or close
}

// NewEventLog returns an open, empty log.
func NewEventLog() *EventLog {
	return &EventLog{wake: make(chan struct{})}
}

// Publish appends ev and returns its sequence number (1-based). It returns
// ErrLogClosed once the log has been closed.
func (l *EventLog) Publish(ev Event) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}
	l.events = append(l.events, ev)
	l.broadcastLocked()
	return len(l.events), nil
}

// Close marks the end of the stream. Readers drain the remaining events and
// then receive io.EOF. Closing twice returns ErrLogClosed.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	l.closed = true
	l.broadcastLocked()
	return nil
}

// Closed reports whether Close has been called.
func (l *EventLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Len returns the number of published events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// History returns a copy of every event published so far.
func (l *EventLog) History() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Envelope, len(l.events))
	for i, ev := range l.events {
		out[i] = Envelope{Seq: i + 1, Event: ev}
	}
	return out
}

// Subscribe returns a reader positioned after the first `after` events, so
// Subscribe(0) replays the whole log and Subscribe(n) resumes after sequence
// number n. Offsets outside the log are clamped.
func (l *EventLog) Subscribe(after int) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if after < 0 {
		after = 0
	}
	if after > len(l.events) {
		after = len(l.events)
	}
	return &Subscription{log: l, next: after}
}

func (l *EventLog) broadcastLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}

// Subscription is one reader's cursor into an EventLog. A Subscription must
// not be shared between goroutines; open one per consumer instead.
type Subscription struct {
	log  *EventLog
	next int
}

// Next blocks until the next event is available and returns it. It returns
// io.EOF after the log is closed and fully drained, or ctx.Err() if ctx ends
// first. Abandoning a Subscription has no effect on the producer.
func (s *Subscription) Next(ctx context.Context) (Envelope, error) {
	for {
		s.log.mu.Lock()
		if s.next < len(s.log.events) {
			ev := s.log.events[s.next]
			s.next++
			seq := s.next
			s.log.mu.Unlock()
			return Envelope{Seq: seq, Event: ev}, nil
		}
		if s.log.closed {
			s.log.mu.Unlock()
			return Envelope{}, io.EOF
		}
		wake := s.log.wake
		s.log.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}
