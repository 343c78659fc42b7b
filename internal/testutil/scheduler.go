package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/frontbase/internal/schedule"
)

// ManualScheduler is a schedule.Scheduler that fires only when told to.
//
// Expressions are validated with the production parser, so a malformed
// expression fails the same way it would against the cron scheduler.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualScheduler struct {
	mu      sync.Mutex
	fns     map[string][]func()
	started bool
	stopped bool
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{fns: make(map[string][]func())}
}

// Schedule implements schedule.Scheduler.
func (s *ManualScheduler) Schedule(expr string, fn func()) error {
	if _, err := schedule.Normalize(expr); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns[expr] = append(s.fns[expr], fn)
	return nil
}

// Start implements schedule.Scheduler.
func (s *ManualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Stop implements schedule.Scheduler.
func (s *ManualScheduler) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Fire runs every callback registered under expr, as one tick would.
// Returns the number of callbacks run. Ticks before Start or after Stop
// run nothing.
func (s *ManualScheduler) Fire(expr string) int {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return 0
	}
	fns := append([]func(){}, s.fns[expr]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Expressions returns the registered expressions in sorted order.
func (s *ManualScheduler) Expressions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.fns))
	for expr := range s.fns {
		out = append(out, expr)
	}
	sort.Strings(out)
	return out
}

// Started reports whether Start was called.
func (s *ManualScheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
