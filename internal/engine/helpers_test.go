package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/metrics"
	"github.com/roach88/frontbase/internal/store"
	"github.com/roach88/frontbase/internal/testutil"
)

// testModels: Contact -account-> Account.
func testModels() []ir.Model {
	return []ir.Model{
		{
			Key:   "Contact",
			Label: "Contact",
			Fields: map[string]ir.FieldDefinition{
				"first":   {Kind: ir.FieldScalar},
				"last":    {Kind: ir.FieldScalar},
				"points":  {Kind: ir.FieldScalar},
				"account": {Kind: ir.FieldRelationship, Target: "Account"},
				"fullName": {
					Kind:       ir.FieldFormula,
					Label:      "Full name",
					Formula:    "{{first}} {{last}}",
					ResultType: "text",
				},
				"greeting": {
					Kind:       ir.FieldFormula,
					Label:      "Greeting",
					Formula:    "Hello {{fullName}}",
					ResultType: "text",
				},
				"score": {
					Kind:       ir.FieldFormula,
					Label:      "Score",
					Formula:    "{{points}} * 2",
					ResultType: "number",
				},
				"accountName": {
					Kind:       ir.FieldFormula,
					Label:      "Account name",
					Formula:    "{{account__r.name}}",
					ResultType: "text",
				},
			},
		},
		{
			Key:   "Account",
			Label: "Account",
			Fields: map[string]ir.FieldDefinition{
				"name": {Kind: ir.FieldScalar},
			},
		},
	}
}

// countingStore counts UpdateField calls.
type countingStore struct {
	*store.Store
	updates atomic.Int64
}

func (c *countingStore) UpdateField(ctx context.Context, id, field string, v ir.Value) (bool, error) {
	c.updates.Add(1)
	return c.Store.UpdateField(ctx, id, field, v)
}

type fixture struct {
	store     *countingStore
	scheduler *testutil.ManualScheduler
	recorder  *testutil.Recorder
	metrics   *metrics.Metrics
	engine    *Engine
}

// newFixture seeds models and processes, then starts an engine over them.
// The engine is stopped on cleanup.
func newFixture(t *testing.T, models []ir.Model, procs []ir.ProcessSpec, opts ...EngineOption) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	testutil.SeedModels(t, s, models...)
	testutil.SeedProcesses(t, s, procs...)

	f := &fixture{
		store:     &countingStore{Store: s},
		scheduler: testutil.NewManualScheduler(),
		recorder:  testutil.NewRecorder(),
		metrics:   metrics.New(),
	}
	opts = append([]EngineOption{
		WithIDGenerator(&formula.SequenceGenerator{}),
		WithMetrics(f.metrics),
	}, opts...)
	f.engine = New(f.store, f.scheduler, f.recorder.Factory(), nil, opts...)

	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(func() { f.engine.Stop(context.Background()) })
	return f
}

// insert stores a document and returns its insert event.
func (f *fixture) insert(t *testing.T, model, id string, values map[string]any) ir.ChangeEvent {
	t.Helper()
	fields := ir.MustFromAny(values).(ir.Object)
	doc, err := f.store.InsertDocument(context.Background(), model, id, fields)
	require.NoError(t, err)
	return ir.ChangeEvent{
		Operation:     ir.OperationInsert,
		Model:         model,
		Document:      doc,
		ChangedFields: fields.SortedKeys(),
	}
}

// update changes fields and returns the update event.
func (f *fixture) update(t *testing.T, model, id string, values map[string]any) ir.ChangeEvent {
	t.Helper()
	ctx := context.Background()
	changed, err := f.store.UpdateFields(ctx, id, ir.MustFromAny(values).(ir.Object))
	require.NoError(t, err)
	doc, err := f.store.FindDocument(ctx, model, id)
	require.NoError(t, err)
	return ir.ChangeEvent{
		Operation:     ir.OperationUpdate,
		Model:         model,
		Document:      doc,
		ChangedFields: changed,
	}
}

func (f *fixture) field(t *testing.T, model, id, field string) ir.Value {
	t.Helper()
	doc, err := f.store.FindDocument(context.Background(), model, id)
	require.NoError(t, err)
	return doc.Get(field)
}
