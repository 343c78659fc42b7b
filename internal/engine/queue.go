package engine

import (
	"sync"

	"github.com/roach88/frontbase/internal/ir"
)

// eventQueue is a thread-safe FIFO queue of change events.
//
// The queue is unbounded so the change-feed reader never blocks on slow
// dispatch. Several workers dequeue concurrently; the signal channel wakes
// one of them per enqueue and TryDequeue passes the wake-up on while events
// remain.
type eventQueue struct {
	mu     sync.Mutex
	events []ir.ChangeEvent
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.ChangeEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e ir.ChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)
	q.notify()
	return true
}

// notify must be called with mu held.
func (q *eventQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the front event without blocking.
func (q *eventQueue) TryDequeue() (ir.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ir.ChangeEvent{}, false
	}

	e := q.events[0]
	// Release the document held by the slot.
	q.events[0] = ir.ChangeEvent{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
		q.notify()
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued. Queued events can
// still be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // wakes all waiters
}
