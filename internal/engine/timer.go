package engine

import (
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/process"
)

// registerSchedules hands every distinct schedule expression of the trigger
// index to the scheduler. Called by Start after the index is complete.
func (e *Engine) registerSchedules() {
	exprs := e.build.Index.Schedules()
	if e.scheduler == nil {
		if len(exprs) > 0 {
			e.logger.Warn("no scheduler configured; time triggers disabled", "schedules", len(exprs))
		}
		return
	}

	for _, expr := range exprs {
		expr := expr // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		if err := e.scheduler.Schedule(expr, func() { e.onTick(expr) }); err != nil {
			e.logger.Error("schedule registration failed", "schedule", expr, "error", err)
			continue
		}
		e.logger.Debug("schedule registered",
			"schedule", expr,
			"triggers", len(e.build.Index.TimeTriggers(expr)),
		)
	}
}

// onTick starts every process registered under expr without waiting for
// it. Overlapping runs of the same process are allowed.
func (e *Engine) onTick(expr string) {
	for _, t := range e.build.Index.TimeTriggers(expr) {
		e.metrics.TriggerFired(string(t.Kind), "schedule")
		e.inflight.Add(1)
		go func(t ir.Trigger) {
			defer e.inflight.Done()
			if err := e.runProcess(e.runCtx, t, process.SourceTime); err != nil {
				e.logDispatchError(&DispatchError{Trigger: t, Err: err})
			}
		}(t)
	}
}
