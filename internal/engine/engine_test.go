package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	fbtest "github.com/roach88/frontbase/internal/testutil"
)

func TestEngine_New_Defaults(t *testing.T) {
	e := New(fbtest.OpenStore(t), nil, nil, nil)

	assert.Equal(t, DefaultWorkers, e.workers)
	assert.Equal(t, WriteAsymmetric, e.policy)
	assert.NotNil(t, e.registry)
	assert.NotNil(t, e.queue)
	assert.Nil(t, e.Build(), "nothing is built before Start")
	assert.Equal(t, 0, e.QueueLen())
}

func TestEngine_Options(t *testing.T) {
	e := New(fbtest.OpenStore(t), nil, nil, nil,
		WithWorkers(7),
		WithWorkers(0), // ignored
		WithWritePolicy(WriteChangeChecked),
		WithCompileConcurrency(3),
		WithMaxDepth(12),
	)

	assert.Equal(t, 7, e.workers)
	assert.Equal(t, WriteChangeChecked, e.policy)
	assert.Equal(t, 3, e.compileConcurrency)
	assert.Equal(t, 12, e.maxDepth)
}

func TestParseWritePolicy(t *testing.T) {
	p, err := ParseWritePolicy("")
	require.NoError(t, err)
	assert.Equal(t, WriteAsymmetric, p)

	p, err = ParseWritePolicy("change-checked")
	require.NoError(t, err)
	assert.Equal(t, WriteChangeChecked, p)

	_, err = ParseWritePolicy("always")
	assert.Error(t, err)
}

func TestEngine_Start_BuildsIndex(t *testing.T) {
	procs := []ir.ProcessSpec{{
		ID:    "nightly-report",
		Label: "Nightly report",
		Triggers: []ir.ProcessTrigger{
			{Name: "tick", Kind: ir.ProcessTriggerTime, Schedule: "hourly"},
		},
	}}
	f := newFixture(t, testModels(), procs)

	res := f.engine.Build()
	require.NotNil(t, res)
	assert.Len(t, res.Formulas, 4)
	assert.Empty(t, res.Failures)

	fullName, ok := res.Formula(ir.FormulaID("Contact", "fullName"))
	require.True(t, ok)
	assert.Equal(t, "Full name", fullName.Label)

	assert.ElementsMatch(t,
		[]ir.Trigger{ir.FormulaTrigger(ir.FormulaID("Contact", "accountName"), false)},
		res.Index.Triggers("Account:name"),
	)

	assert.Equal(t, []string{"0 * * * *"}, f.scheduler.Expressions())
	assert.True(t, f.scheduler.Started())
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.FormulasCompiled.WithLabelValues("ok")))
}

func TestEngine_Start_Twice(t *testing.T) {
	f := newFixture(t, testModels(), nil)
	assert.Error(t, f.engine.Start(context.Background()))
}

func TestEngine_Start_ExcludesFailedFormulas(t *testing.T) {
	models := testModels()
	models[1].Fields["broken"] = ir.FieldDefinition{
		Kind:    ir.FieldFormula,
		Label:   "Broken",
		Formula: "{{NOPE(name)}}",
	}
	f := newFixture(t, models, nil)

	res := f.engine.Build()
	assert.Len(t, res.Formulas, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Broken", res.Failures[0].Label)
	assert.True(t, formula.IsCode(res.Failures[0], formula.ErrCodeUnknownFunction))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FormulasCompiled.WithLabelValues("failed")))

	// The failed formula is never fired.
	ev := f.insert(t, "Account", "a1", map[string]any{"name": "Acme"})
	require.NoError(t, f.engine.HandleEvent(context.Background(), ev))
	assert.Equal(t, ir.Value(ir.Null{}), f.field(t, "Account", "a1", "broken"))
}

func TestEngine_Run_NotStarted(t *testing.T) {
	e := New(fbtest.OpenStore(t), nil, nil, nil)
	assert.ErrorIs(t, e.Run(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, e.HandleEvent(context.Background(), ir.ChangeEvent{}), ErrNotStarted)
}

func TestEngine_Run_PropagatesThroughChangeFeed(t *testing.T) {
	f := newFixture(t, testModels(), nil, WithWorkers(2))

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	f.insert(t, "Account", "a1", map[string]any{"name": "Acme"})
	f.insert(t, "Contact", "c1", map[string]any{
		"first":   "Ada",
		"last":    "Lovelace",
		"points":  21,
		"account": "a1",
	})

	// greeting depends on fullName, so it is written by the second round.
	require.Eventually(t, func() bool {
		return ir.Equal(f.field(t, "Contact", "c1", "greeting"), ir.String("Hello Ada Lovelace"))
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, ir.Value(ir.String("Ada Lovelace")), f.field(t, "Contact", "c1", "fullName"))
	assert.Equal(t, ir.Value(ir.Number(42)), f.field(t, "Contact", "c1", "score"))
	assert.Equal(t, ir.Value(ir.String("Acme")), f.field(t, "Contact", "c1", "accountName"))

	// A foreign change reaches every dependent contact.
	f.update(t, "Account", "a1", map[string]any{"name": "Initech"})
	require.Eventually(t, func() bool {
		return ir.Equal(f.field(t, "Contact", "c1", "accountName"), ir.String("Initech"))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.engine.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err, "Run returns nil once the feed closes")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 0, f.engine.QueueLen(), "queued events are dispatched before Run returns")
}

func TestEngine_Run_ContextCancel(t *testing.T) {
	f := newFixture(t, testModels(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
