package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/process"
)

// HandleEvent fires every trigger registered for the event's changed
// fields. The deduplicated firing set is dispatched concurrently and
// HandleEvent returns once every trigger has finished.
//
// Each failing trigger is logged as a *DispatchError and does not stop the
// others. The joined failures are returned for callers that want them.
func (e *Engine) HandleEvent(ctx context.Context, ev ir.ChangeEvent) error {
	if e.build == nil {
		return ErrNotStarted
	}
	e.metrics.ChangeEvent(string(ev.Operation))

	fired := e.build.Index.Fire(ev.Model, ev.ChangedFields)
	if len(fired) == 0 {
		return nil
	}

	start := time.Now()
	e.logger.Debug("change event fired triggers",
		"operation", string(ev.Operation),
		"model", ev.Model,
		"document_id", ev.Document.ID,
		"changed", ev.ChangedFields,
		"triggers", len(fired),
	)

	errs := make([]error, len(fired))
	var wg sync.WaitGroup
	for i, t := range fired {
		wg.Add(1)
		go func(i int, t ir.Trigger) {
			defer wg.Done()
			errs[i] = e.dispatch(ctx, ev, t)
		}(i, t)
	}
	wg.Wait()

	e.metrics.ObserveDispatch(time.Since(start))
	return errors.Join(errs...)
}

func (e *Engine) dispatch(ctx context.Context, ev ir.ChangeEvent, t ir.Trigger) error {
	var err error
	switch t.Kind {
	case ir.TriggerFormula:
		err = e.dispatchFormula(ctx, ev, t)
	case ir.TriggerProcess:
		e.metrics.TriggerFired(string(t.Kind), "process")
		err = e.runProcess(ctx, t, process.SourceData)
	default:
		err = fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	if err == nil {
		return nil
	}

	de := &DispatchError{Trigger: t, Model: ev.Model, DocumentID: ev.Document.ID, Err: err}
	e.logDispatchError(de)
	return de
}

func (e *Engine) dispatchFormula(ctx context.Context, ev ir.ChangeEvent, t ir.Trigger) error {
	f, ok := e.build.Formula(t.FormulaID)
	if !ok {
		return fmt.Errorf("formula %s is not compiled", t.FormulaID)
	}
	if t.IsLocal {
		e.metrics.TriggerFired(string(t.Kind), "local")
		return e.recomputeLocal(ctx, f, ev.Document)
	}
	e.metrics.TriggerFired(string(t.Kind), "foreign")
	return e.recomputeForeign(ctx, f)
}

// recomputeLocal evaluates f against the current stored state of the
// event's document and writes the result to it. Under WriteAsymmetric the
// write is unconditional; the store still reports no change for an equal
// value.
func (e *Engine) recomputeLocal(ctx context.Context, f *formula.Formula, evDoc ir.Document) error {
	unlock := e.locks.Lock(evDoc.ID)
	defer unlock()

	// Workers may dispatch events for one document out of order; the
	// event's snapshot can be older than what another worker already wrote.
	doc, err := e.store.FindDocument(ctx, f.Model, evDoc.ID)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	v, err := e.evaluate(ctx, f, doc)
	if err != nil {
		return err
	}

	if e.policy == WriteChangeChecked && ir.Equal(v, doc.Get(f.Field)) {
		e.metrics.FormulaWrite("unchanged")
		return nil
	}
	return e.write(ctx, f, doc.ID, v)
}

// recomputeForeign re-evaluates f for every document of its model and
// writes only results that differ from the stored value. A failing
// document does not stop the scan.
func (e *Engine) recomputeForeign(ctx context.Context, f *formula.Formula) error {
	docs, err := e.store.FindDocuments(ctx, f.Model, nil)
	if err != nil {
		return fmt.Errorf("find %s documents: %w", f.Model, err)
	}

	var errs []error
	for _, d := range docs {
		if err := e.recomputeDocument(ctx, f, d.ID); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) recomputeDocument(ctx context.Context, f *formula.Formula, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	// Re-read under the lock so a concurrent write is not overwritten with
	// a result computed from stale fields.
	doc, err := e.store.FindDocument(ctx, f.Model, id)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	v, err := e.evaluate(ctx, f, doc)
	if err != nil {
		return err
	}

	if ir.Equal(v, doc.Get(f.Field)) {
		e.metrics.FormulaWrite("unchanged")
		return nil
	}
	return e.write(ctx, f, doc.ID, v)
}

func (e *Engine) evaluate(ctx context.Context, f *formula.Formula, doc ir.Document) (ir.Value, error) {
	v, err := f.Evaluate(ctx, doc, e.store)
	if err != nil {
		e.metrics.EvaluationError(string(formula.CodeOf(err)))
		return nil, err
	}
	return v, nil
}

func (e *Engine) write(ctx context.Context, f *formula.Formula, id string, v ir.Value) error {
	changed, err := e.store.UpdateField(ctx, id, f.Field, v)
	if err != nil {
		e.metrics.FormulaWrite("failed")
		return fmt.Errorf("write %s.%s: %w", f.Model, f.Field, err)
	}
	if !changed {
		e.metrics.FormulaWrite("unchanged")
		return nil
	}

	e.metrics.FormulaWrite("written")
	e.logger.Debug("formula written",
		"label", f.Label,
		"model", f.Model,
		"field", f.Field,
		"document_id", id,
	)
	return nil
}

// runProcess executes the process behind t with a fresh runtime context.
func (e *Engine) runProcess(ctx context.Context, t ir.Trigger, source process.Source) error {
	spec, ok := e.specs[t.ProcessID]
	if !ok {
		return fmt.Errorf("process %s is not loaded", t.ProcessID)
	}
	p, ok := e.processes[t.ProcessID]
	if !ok {
		return fmt.Errorf("process %s has no instance", t.ProcessID)
	}
	pt, ok := spec.Trigger(t.TriggerName)
	if !ok {
		return fmt.Errorf("process %s has no trigger %q", t.ProcessID, t.TriggerName)
	}

	rc := process.NewRuntimeContext(source)
	err := p.Execute(ctx, pt, rc)
	e.metrics.ProcessRun(string(source), err)
	if err != nil {
		return fmt.Errorf("run %s: %w", rc.RunID, err)
	}

	e.logger.Debug("process run finished",
		"process_id", t.ProcessID,
		"trigger", t.TriggerName,
		"source", string(source),
		"run_id", rc.RunID,
	)
	return nil
}

func (e *Engine) logDispatchError(de *DispatchError) {
	attrs := []any{
		"kind", string(de.Trigger.Kind),
		"model", de.Model,
		"document_id", de.DocumentID,
		"error", de.Err,
	}
	switch de.Trigger.Kind {
	case ir.TriggerProcess:
		attrs = append(attrs, "process_id", de.Trigger.ProcessID, "trigger", de.Trigger.TriggerName)
	case ir.TriggerFormula:
		attrs = append(attrs, "formula_id", de.Trigger.FormulaID, "is_local", de.Trigger.IsLocal)
		if f, ok := e.build.Formula(de.Trigger.FormulaID); ok {
			attrs = append(attrs, "label", f.Label)
		}
		if code := formula.CodeOf(de.Err); code != "" {
			attrs = append(attrs, "code", string(code))
		}
	}
	e.logger.Error("trigger dispatch failed", attrs...)
}
