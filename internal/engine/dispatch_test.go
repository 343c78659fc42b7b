package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/process"
	fbtest "github.com/roach88/frontbase/internal/testutil"
)

func TestHandleEvent_LocalRecompute(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	ctx := context.Background()

	ev := f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace", "points": 4})
	require.NoError(t, f.engine.HandleEvent(ctx, ev))

	assert.Equal(t, ir.Value(ir.String("Ada Lovelace")), f.field(t, "Contact", "c1", "fullName"))
	assert.Equal(t, ir.Value(ir.Number(8)), f.field(t, "Contact", "c1", "score"))
	// greeting reads fullName, which was not in the changed set.
	assert.Equal(t, ir.Value(ir.Null{}), f.field(t, "Contact", "c1", "greeting"))
}

func TestHandleEvent_NoTriggers(t *testing.T) {
	f := newFixture(t, testModels(), nil)

	ev := f.insert(t, "Contact", "c1", map[string]any{"nickname": "Ada"})
	require.NoError(t, f.engine.HandleEvent(context.Background(), ev))
	assert.Equal(t, int64(0), f.store.updates.Load())
}

func TestHandleEvent_LocalWriteIsUnconditional(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	ctx := context.Background()

	ev := f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace"})
	require.NoError(t, f.engine.HandleEvent(ctx, ev))
	before := f.store.updates.Load()

	// Same inputs again: the value is unchanged but still written.
	ev = f.update(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace", "points": 1})
	ev.ChangedFields = []string{"first"}
	require.NoError(t, f.engine.HandleEvent(ctx, ev))

	assert.Equal(t, before+1, f.store.updates.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FormulaWrites.WithLabelValues("unchanged")))
}

func TestHandleEvent_ChangeCheckedSkipsEqualWrites(t *testing.T) {
	f := newFixture(t, testModels(), nil, WithWritePolicy(WriteChangeChecked))
	ctx := context.Background()

	ev := f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace"})
	require.NoError(t, f.engine.HandleEvent(ctx, ev))
	before := f.store.updates.Load()

	ev = f.update(t, "Contact", "c1", map[string]any{"points": 1})
	ev.ChangedFields = []string{"first"}
	require.NoError(t, f.engine.HandleEvent(ctx, ev))

	assert.Equal(t, before, f.store.updates.Load(), "equal local result is not written")
}

func TestHandleEvent_LocalUsesStoredStateOutOfOrder(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	ctx := context.Background()

	require.NoError(t, f.engine.HandleEvent(ctx, f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace"})))
	older := f.update(t, "Contact", "c1", map[string]any{"first": "Grace"})
	newer := f.update(t, "Contact", "c1", map[string]any{"first": "Hedy"})

	// Dispatch the newer event first, as a second worker might.
	require.NoError(t, f.engine.HandleEvent(ctx, newer))
	require.NoError(t, f.engine.HandleEvent(ctx, older))

	assert.Equal(t, ir.Value(ir.String("Hedy")), f.field(t, "Contact", "c1", "first"))
	assert.Equal(t, ir.Value(ir.String("Hedy Lovelace")), f.field(t, "Contact", "c1", "fullName"))
}

func TestHandleEvent_ForeignRecompute(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	ctx := context.Background()

	f.insert(t, "Account", "a1", map[string]any{"name": "Acme"})
	f.insert(t, "Account", "a2", map[string]any{"name": "Globex"})
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, f.engine.HandleEvent(ctx, f.insert(t, "Contact", id, map[string]any{"account": "a1"})))
	}
	require.NoError(t, f.engine.HandleEvent(ctx, f.insert(t, "Contact", "c3", map[string]any{"account": "a2"})))
	assert.Equal(t, ir.Value(ir.String("Acme")), f.field(t, "Contact", "c1", "accountName"))

	before := f.store.updates.Load()
	ev := f.update(t, "Account", "a1", map[string]any{"name": "Initech"})
	require.NoError(t, f.engine.HandleEvent(ctx, ev))

	assert.Equal(t, ir.Value(ir.String("Initech")), f.field(t, "Contact", "c1", "accountName"))
	assert.Equal(t, ir.Value(ir.String("Initech")), f.field(t, "Contact", "c2", "accountName"))
	assert.Equal(t, ir.Value(ir.String("Globex")), f.field(t, "Contact", "c3", "accountName"))
	assert.Equal(t, before+2, f.store.updates.Load(), "unchanged foreign results are not written")
}

func TestHandleEvent_EvaluationErrorDoesNotAbortFiringSet(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	ctx := context.Background()

	ev := f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace", "account": "missing"})
	err := f.engine.HandleEvent(ctx, ev)
	require.Error(t, err)

	assert.True(t, IsDispatchError(err))
	assert.True(t, formula.IsCode(err, formula.ErrCodeMissingDocument))

	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, ir.FormulaID("Contact", "accountName"), de.Trigger.FormulaID)
	assert.Equal(t, "c1", de.DocumentID)

	assert.Equal(t, ir.Value(ir.String("Ada Lovelace")), f.field(t, "Contact", "c1", "fullName"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvaluationErrors.WithLabelValues("MISSING_DOCUMENT")))
}

func TestHandleEvent_DataProcessTrigger(t *testing.T) {
	procs := []ir.ProcessSpec{{
		ID:    "welcome",
		Label: "Welcome mail",
		Triggers: []ir.ProcessTrigger{
			{Name: "on-name", Kind: ir.ProcessTriggerData, Model: "Contact", Fields: []string{"first", "last"}},
		},
	}}
	f := newFixture(t, testModels(), procs)

	ev := f.insert(t, "Contact", "c1", map[string]any{"first": "Ada", "last": "Lovelace"})
	require.NoError(t, f.engine.HandleEvent(context.Background(), ev))

	// Both fields changed, but the trigger fires once.
	assert.Equal(t, []fbtest.Run{
		{ProcessID: "welcome", Trigger: "on-name", Source: process.SourceData, User: process.ElevatedUser},
	}, f.recorder.Recorded())
}

func TestHandleEvent_ProcessFailure(t *testing.T) {
	procs := []ir.ProcessSpec{
		{
			ID:       "flaky",
			Triggers: []ir.ProcessTrigger{{Name: "t", Kind: ir.ProcessTriggerData, Model: "Contact", Fields: []string{"first"}}},
		},
		{
			ID:       "rejected",
			Triggers: []ir.ProcessTrigger{{Name: "t", Kind: ir.ProcessTriggerData, Model: "Contact", Fields: []string{"first"}}},
		},
	}

	s := fbtest.OpenStore(t)
	fbtest.SeedModels(t, s, testModels()...)
	fbtest.SeedProcesses(t, s, procs...)
	rec := fbtest.NewRecorder()
	rec.Failing["flaky"] = true
	rec.Rejected["rejected"] = true

	e := New(s, nil, rec.Factory(), nil)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Stop(context.Background()) })

	doc, err := s.InsertDocument(context.Background(), "Contact", "c1", ir.Object{"first": ir.String("Ada")})
	require.NoError(t, err)
	err = e.HandleEvent(context.Background(), ir.ChangeEvent{
		Operation:     ir.OperationInsert,
		Model:         "Contact",
		Document:      doc,
		ChangedFields: []string{"first"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process flaky failed")
	assert.Contains(t, err.Error(), "process rejected has no instance")

	// The formula in the same firing set still ran.
	got, err := s.FindDocument(context.Background(), "Contact", "c1")
	require.NoError(t, err)
	assert.Equal(t, ir.Value(ir.String("Ada ")), got.Get("fullName"))
}

func TestDispatchError_Message(t *testing.T) {
	err := &DispatchError{
		Trigger:    ir.ProcessTriggerRef("p1", "nightly"),
		Model:      "Contact",
		DocumentID: "c1",
		Err:        errors.New("boom"),
	}
	assert.Equal(t, `dispatch process p1 trigger "nightly" for Contact/c1: boom`, err.Error())

	err = &DispatchError{Trigger: ir.FormulaTrigger("f1", true), Err: errors.New("boom")}
	assert.Equal(t, "dispatch local formula f1: boom", err.Error())
	assert.False(t, IsDispatchError(errors.New("boom")))
}
