package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/functions"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/metrics"
	"github.com/roach88/frontbase/internal/process"
	"github.com/roach88/frontbase/internal/schedule"
	"github.com/roach88/frontbase/internal/store"
	"github.com/roach88/frontbase/internal/trigger"
)

// Store is the document store the engine reads metadata from, recomputes
// against and subscribes to. *store.Store implements it.
type Store interface {
	LoadModels(ctx context.Context) (ir.Models, error)
	ListProcesses(ctx context.Context) ([]ir.ProcessSpec, error)
	FindDocument(ctx context.Context, model, id string) (ir.Document, error)
	FindDocuments(ctx context.Context, model string, filter store.Filter) ([]ir.Document, error)
	UpdateField(ctx context.Context, id, field string, value ir.Value) (bool, error)
	Subscribe(ctx context.Context) (<-chan ir.ChangeEvent, func())
}

// Engine is the reactive formula engine.
//
// It owns everything built at startup: model metadata, compiled formulas,
// the trigger index and one process instance per process id. None of it
// changes after Start returns, so dispatch reads it without locking.
//
// Thread-safety model:
//   - Start(): call once, before Run
//   - Run(): call from exactly one goroutine; it fans out to worker goroutines
//   - HandleEvent(): safe from any goroutine once Start has returned
//   - Stop(): safe from any goroutine
type Engine struct {
	store     Store
	scheduler schedule.Scheduler
	factory   process.Factory
	registry  *functions.Registry
	ids       formula.IDGenerator
	metrics   *metrics.Metrics
	logger    *slog.Logger

	workers            int
	compileConcurrency int
	maxDepth           int
	policy             WritePolicy

	models    ir.Models
	build     *trigger.Result
	specs     map[string]ir.ProcessSpec
	processes map[string]process.Process

	queue    *eventQueue
	locks    *keyedMutex
	inflight sync.WaitGroup

	mu         sync.Mutex
	started    bool
	feed       <-chan ir.ChangeEvent
	cancelFeed func()
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// New creates an Engine. Nothing is loaded until Start.
//
// A nil scheduler disables time triggers; a nil factory disables process
// triggers; a nil registry selects functions.Default().
func New(
	s Store,
	scheduler schedule.Scheduler,
	factory process.Factory,
	registry *functions.Registry,
	opts ...EngineOption,
) *Engine {
	if registry == nil {
		registry = functions.Default()
	}

	e := &Engine{
		store:     s,
		scheduler: scheduler,
		factory:   factory,
		registry:  registry,
		logger:    slog.Default(),
		workers:   DefaultWorkers,
		policy:    WriteAsymmetric,
		specs:     make(map[string]ir.ProcessSpec),
		processes: make(map[string]process.Process),
		queue:     newEventQueue(),
		locks:     newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start loads model metadata and process definitions, compiles every
// formula, builds the trigger index, instantiates processes, registers
// schedules and subscribes to the change feed, in that order.
//
// Compilation completes for every formula before any trigger can fire.
// Formula and trigger failures are logged and excluded; Start only fails
// when the store cannot be read or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.New("engine already started")
	}

	models, err := e.store.LoadModels(ctx)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	specs, err := e.store.ListProcesses(ctx)
	if err != nil {
		return fmt.Errorf("load processes: %w", err)
	}

	res, err := trigger.Build(ctx, models, specs, trigger.Options{
		Env: formula.Env{
			Models:   models,
			Registry: e.registry,
			IDs:      e.ids,
			MaxDepth: e.maxDepth,
		},
		Concurrency: e.compileConcurrency,
		Logger:      e.logger,
	})
	if err != nil {
		return fmt.Errorf("build trigger index: %w", err)
	}
	e.models = models
	e.build = res
	e.recordCompile(res)

	e.runCtx, e.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))

	for _, spec := range specs {
		e.specs[spec.ID] = spec
		e.instantiate(spec)
	}

	e.registerSchedules()

	e.feed, e.cancelFeed = e.store.Subscribe(context.WithoutCancel(ctx))

	if e.scheduler != nil {
		e.scheduler.Start()
	}
	e.started = true

	e.logger.Info("engine started",
		"models", len(models),
		"formulas", len(res.Formulas),
		"processes", len(e.processes),
		"failures", len(res.Failures),
		"write_policy", string(e.policy),
	)
	return nil
}

func (e *Engine) recordCompile(res *trigger.Result) {
	for range res.Formulas {
		e.metrics.Compiled(true)
	}
	for _, f := range res.Failures {
		if f.ProcessID == "" {
			e.metrics.Compiled(false)
		}
	}
}

func (e *Engine) instantiate(spec ir.ProcessSpec) {
	if e.factory == nil {
		return
	}
	p, err := e.factory(spec, process.ElevatedContext())
	if err != nil {
		e.logger.Error("process instantiation failed",
			"process_id", spec.ID,
			"label", spec.Label,
			"error", err,
		)
		return
	}
	e.processes[spec.ID] = p
}

// Run dispatches change events until ctx is cancelled or the change feed
// closes (Stop). Events are handled by a pool of workers; events already
// queued when Run stops are still dispatched before it returns.
//
// Returns ctx.Err() on cancellation and nil when the feed closed.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	feed := e.feed
	e.mu.Unlock()
	if feed == nil {
		return ErrNotStarted
	}

	e.logger.Info("engine running", "workers", e.workers)

	// In-flight fan-out completes even after ctx is cancelled.
	dispatchCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(dispatchCtx)
		}()
	}

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			err = ctx.Err()
			break loop
		case ev, ok := <-feed:
			if !ok {
				e.logger.Info("engine stopping: change feed closed")
				break loop
			}
			e.queue.Enqueue(ev)
		}
	}

	e.queue.Close()
	wg.Wait()
	return err
}

func (e *Engine) work(ctx context.Context) {
	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			// Failures are logged per trigger inside HandleEvent.
			_ = e.HandleEvent(ctx, ev)
			continue
		}
		if e.queue.Drained() {
			return
		}
		<-e.queue.Wait()
	}
}

// Stop closes the change feed, stops the scheduler and waits for running
// scheduled processes, or for ctx. Run returns once the feed is closed and
// queued events are dispatched.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancelFeed := e.cancelFeed
	e.cancelFeed = nil
	cancelRuns := e.cancelRuns
	e.mu.Unlock()

	if cancelFeed != nil {
		cancelFeed()
	}

	var errs []error
	if e.scheduler != nil {
		if err := e.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for process runs: %w", ctx.Err()))
	}

	if cancelRuns != nil {
		cancelRuns()
	}

	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Models returns the model metadata loaded at Start.
func (e *Engine) Models() ir.Models {
	return e.models
}

// Build returns the compiled formulas, trigger index and failures from
// Start, or nil before Start.
func (e *Engine) Build() *trigger.Result {
	return e.build
}

// QueueLen returns the number of change events waiting for a worker.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}
