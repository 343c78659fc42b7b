package process

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
)

func TestElevatedContext(t *testing.T) {
	sc := ElevatedContext()
	assert.Equal(t, ElevatedUser, sc.UserID)
	assert.Equal(t, []string{"*"}, sc.Permissions)
}

func TestNewRuntimeContext(t *testing.T) {
	a := NewRuntimeContext(SourceTime)
	b := NewRuntimeContext(SourceTime)

	assert.Equal(t, SourceTime, a.Source)
	assert.Len(t, a.RunID, 36)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestLogFactory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p, err := LogFactory(logger)(ir.ProcessSpec{ID: "nightly", Label: "Nightly"}, ElevatedContext())
	require.NoError(t, err)

	trig := ir.ProcessTrigger{Name: "midnight", Kind: ir.ProcessTriggerTime, Schedule: "daily"}
	require.NoError(t, p.Execute(context.Background(), trig, RuntimeContext{RunID: "r1", Source: SourceTime}))

	out := buf.String()
	assert.Contains(t, out, "process executed")
	assert.Contains(t, out, "process_id=nightly")
	assert.Contains(t, out, "trigger=midnight")
	assert.Contains(t, out, "run_id=r1")
	assert.Contains(t, out, "user=engine")
}
