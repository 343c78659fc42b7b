package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/store"
)

// OpenStore opens a store in a temporary directory, closed on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedModels saves models into s.
func SeedModels(t testing.TB, s *store.Store, models ...ir.Model) {
	t.Helper()
	for _, m := range models {
		require.NoError(t, s.SaveModel(context.Background(), m))
	}
}

// SeedProcesses saves process definitions into s.
func SeedProcesses(t testing.TB, s *store.Store, procs ...ir.ProcessSpec) {
	t.Helper()
	for _, p := range procs {
		require.NoError(t, s.SaveProcess(context.Background(), p))
	}
}
