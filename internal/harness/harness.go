package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/frontbase/internal/compiler"
	"github.com/roach88/frontbase/internal/engine"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/schedule"
	"github.com/roach88/frontbase/internal/store"
	"github.com/roach88/frontbase/internal/testutil"
)

// maxEventsPerStep bounds change propagation so a formula cycle that never
// converges fails the step instead of hanging.
const maxEventsPerStep = 1000

// tickTimeout bounds the wait for the process runs of one tick.
const tickTimeout = 5 * time.Second

// Harness is the scenario execution engine.
// It drives the engine directly: change events are dispatched with
// Engine.HandleEvent on the calling goroutine instead of through Run, so
// each step finishes before the next one starts.
type Harness struct {
	store     *scenarioStore
	engine    *engine.Engine
	scheduler *testutil.ManualScheduler
	recorder  *testutil.Recorder
	logger    *slog.Logger
	runsSeen  int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load the CUE models and processes into it
// 3. Start the engine (compile formulas, build the trigger index)
// 4. Execute steps, each to quiescence
// 5. Evaluate assertions against the trace and final documents
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	if err := loadDefinitions(ctx, st, scenario.Models); err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	h := &Harness{
		store:     newScenarioStore(st),
		scheduler: testutil.NewManualScheduler(),
		recorder:  testutil.NewRecorder(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.engine = engine.New(h.store, h.scheduler, h.recorder.Factory(), nil,
		engine.WithWorkers(1),
		engine.WithLogger(h.logger),
	)
	if err := h.engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() { _ = h.engine.Stop(ctx) }()

	result := NewResult()
	for i, step := range scenario.Steps {
		events, err := h.executeStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, events...)
	}

	docs, err := h.finalState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.Documents = docs

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// loadDefinitions compiles the CUE definitions in dir into st.
func loadDefinitions(ctx context.Context, st *store.Store, dir string) error {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return errs[0]
	}
	if problems := compiler.Validate(loaded.Models, loaded.Processes); len(problems) > 0 {
		return problems[0]
	}
	for _, m := range loaded.Models {
		if err := st.SaveModel(ctx, m); err != nil {
			return err
		}
	}
	for _, p := range loaded.Processes {
		if err := st.SaveProcess(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// executeStep applies one step, dispatches everything it causes and
// returns the step's trace.
func (h *Harness) executeStep(ctx context.Context, n int, step Step) ([]TraceEvent, error) {
	switch step.Kind() {
	case StepInsert:
		fields, err := toObject(step.Fields)
		if err != nil {
			return nil, err
		}
		doc, err := h.store.InsertDocument(ctx, step.Insert, step.ID, fields)
		if err != nil {
			return nil, err
		}
		h.store.push(ir.ChangeEvent{
			Operation:     ir.OperationInsert,
			Model:         doc.Model,
			Document:      doc,
			ChangedFields: doc.Fields.SortedKeys(),
		})

	case StepUpdate:
		fields, err := toObject(step.Fields)
		if err != nil {
			return nil, err
		}
		if err := h.store.update(ctx, step.Update, fields); err != nil {
			return nil, err
		}

	case StepTick:
		if err := h.tick(step.Tick); err != nil {
			return nil, err
		}

	default:
		return nil, errors.New("exactly one of insert, update or tick is required")
	}

	if err := h.settle(ctx); err != nil {
		return nil, err
	}
	return h.collect(n), nil
}

// settle dispatches pending change events until none remain.
func (h *Harness) settle(ctx context.Context) error {
	for i := 0; ; i++ {
		ev, ok := h.store.next()
		if !ok {
			return nil
		}
		if i >= maxEventsPerStep {
			return fmt.Errorf("did not settle after %d change events", maxEventsPerStep)
		}
		// Dispatch failures are part of the observable behavior; they are
		// reflected in the trace and final state rather than aborting.
		_ = h.engine.HandleEvent(ctx, ev)
	}
}

// tick fires a schedule and waits for the process runs it starts.
func (h *Harness) tick(spec string) error {
	expr, err := schedule.Normalize(spec)
	if err != nil {
		return err
	}

	want := len(h.recorder.Recorded()) + len(h.engine.Build().Index.TimeTriggers(expr))
	h.scheduler.Fire(expr)

	deadline := time.Now().Add(tickTimeout)
	for len(h.recorder.Recorded()) < want {
		if time.Now().After(deadline) {
			return fmt.Errorf("tick %q: process runs did not finish within %s", spec, tickTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// collect returns the writes and runs since the previous step, sorted.
func (h *Harness) collect(n int) []TraceEvent {
	events := h.store.drainWrites()

	runs := h.recorder.Recorded()
	for _, r := range runs[h.runsSeen:] {
		events = append(events, TraceEvent{
			Type:    TraceRun,
			Process: r.ProcessID,
			Trigger: r.Trigger,
			Source:  string(r.Source),
		})
	}
	h.runsSeen = len(runs)

	for i := range events {
		events[i].Step = n
	}
	sortEvents(events)
	return events
}

// finalState reads every document of every model.
func (h *Harness) finalState(ctx context.Context) ([]ir.Document, error) {
	var docs []ir.Document
	for _, model := range h.engine.Models().Keys() {
		found, err := h.store.FindDocuments(ctx, model, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, found...)
	}
	if docs == nil {
		docs = []ir.Document{}
	}
	return docs, nil
}

// scenarioStore wraps the store so writes queue their change events for
// synchronous dispatch and formula write-backs are traced.
type scenarioStore struct {
	*store.Store

	mu      sync.Mutex
	pending []ir.ChangeEvent
	writes  []TraceEvent
}

func newScenarioStore(st *store.Store) *scenarioStore {
	return &scenarioStore{Store: st}
}

// UpdateField is the engine's write-back path.
func (s *scenarioStore) UpdateField(ctx context.Context, id, field string, value ir.Value) (bool, error) {
	changed, err := s.Store.UpdateFields(ctx, id, ir.Object{field: value})
	if err != nil || len(changed) == 0 {
		return false, err
	}
	doc, err := s.Store.ReadDocument(ctx, id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.writes = append(s.writes, TraceEvent{
		Type:     TraceWrite,
		Model:    doc.Model,
		Document: id,
		Field:    field,
		Value:    value,
	})
	s.mu.Unlock()

	s.push(ir.ChangeEvent{
		Operation:     ir.OperationUpdate,
		Model:         doc.Model,
		Document:      doc,
		ChangedFields: changed,
	})
	return true, nil
}

// update merges values into a document and queues the change event.
func (s *scenarioStore) update(ctx context.Context, id string, values ir.Object) error {
	changed, err := s.Store.UpdateFields(ctx, id, values)
	if err != nil || len(changed) == 0 {
		return err
	}
	doc, err := s.Store.ReadDocument(ctx, id)
	if err != nil {
		return err
	}
	s.push(ir.ChangeEvent{
		Operation:     ir.OperationUpdate,
		Model:         doc.Model,
		Document:      doc,
		ChangedFields: changed,
	})
	return nil
}

// Subscribe returns a feed that never delivers; the harness dispatches
// queued events itself.
func (s *scenarioStore) Subscribe(context.Context) (<-chan ir.ChangeEvent, func()) {
	ch := make(chan ir.ChangeEvent)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (s *scenarioStore) push(ev ir.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
}

func (s *scenarioStore) next() (ir.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return ir.ChangeEvent{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *scenarioStore) drainWrites() []TraceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.writes
	s.writes = nil
	return out
}

// toObject converts YAML field values into an ir.Object.
func toObject(fields map[string]interface{}) (ir.Object, error) {
	obj := make(ir.Object, len(fields))
	for k, raw := range fields {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}
