package store

import (
	"context"
	"sync"

	"github.com/roach88/frontbase/internal/ir"
)

// subscriptionBuffer is the per-subscriber event buffer depth.
const subscriptionBuffer = 1024

// hub fans committed change events out to subscribers.
type hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	closed bool
}

type subscription struct {
	in   chan ir.ChangeEvent
	out  chan ir.ChangeEvent
	done chan struct{}
	once sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[int]*subscription)}
}

func (h *hub) subscribe(ctx context.Context) (<-chan ir.ChangeEvent, func()) {
	sub := &subscription{
		in:   make(chan ir.ChangeEvent, subscriptionBuffer),
		out:  make(chan ir.ChangeEvent),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.out)
		return sub.out, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}

	go sub.forward()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.out, cancel
}

// forward moves buffered events to the reader. out is closed only here, so
// publishers never send on a closed channel.
func (s *subscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.in:
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// publish delivers ev to every current subscriber.
func (h *hub) publish(ev ir.ChangeEvent) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.in <- ev:
		case <-sub.done:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.stop()
		delete(h.subs, id)
	}
}
