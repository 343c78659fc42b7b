package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/frontbase/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fields builds a document field object from plain Go values.
func fields(m map[string]any) ir.Object {
	return ir.MustFromAny(m).(ir.Object)
}

// nextEvent reads one event or fails after a timeout.
func nextEvent(t *testing.T, ch <-chan ir.ChangeEvent) ir.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("change feed closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
	return ir.ChangeEvent{}
}

// assertNoEvent fails if an event arrives within a short window.
func assertNoEvent(t *testing.T, ch <-chan ir.ChangeEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected change event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
