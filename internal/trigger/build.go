package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/schedule"
)

// DefaultConcurrency bounds concurrent formula compilation when unset.
const DefaultConcurrency = 8

// Options configures Build.
type Options struct {
	Env         formula.Env
	Concurrency int
	Logger      *slog.Logger
}

// Failure is one formula or process trigger that could not be indexed.
type Failure struct {
	Label     string
	Model     string
	Field     string
	ProcessID string
	Trigger   string
	Err       error
}

// Error implements the error interface.
func (f Failure) Error() string {
	if f.ProcessID != "" {
		return fmt.Sprintf("process %s trigger %q: %v", f.ProcessID, f.Trigger, f.Err)
	}
	return fmt.Sprintf("formula %q (%s.%s): %v", f.Label, f.Model, f.Field, f.Err)
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error {
	return f.Err
}

// Result is the outcome of Build.
type Result struct {
	Index    *Index
	Formulas map[string]*formula.Formula // by formula id
	Failures []Failure
}

// Formula returns a compiled formula by id.
func (r *Result) Formula(id string) (*formula.Formula, bool) {
	f, ok := r.Formulas[id]
	return f, ok
}

// Build compiles every formula field of models and indexes its
// dependencies, then indexes the declared triggers of processes.
//
// Formulas compile concurrently, at most opts.Concurrency at a time; Build
// waits for every compilation before touching the index. A failing formula
// or process trigger is logged, recorded in Result.Failures and skipped.
// Only context cancellation makes Build return an error.
func Build(ctx context.Context, models ir.Models, processes []ir.ProcessSpec, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	res := &Result{
		Index:    NewIndex(),
		Formulas: make(map[string]*formula.Formula),
	}

	var sources []formula.Source
	for _, modelKey := range models.Keys() {
		m := models[modelKey]
		for _, fieldKey := range m.FieldKeys() {
			if m.Fields[fieldKey].Kind != ir.FieldFormula {
				continue
			}
			src, err := formula.FromField(m, fieldKey)
			if err != nil {
				res.addFailure(logger, Failure{Label: modelKey + "." + fieldKey, Model: modelKey, Field: fieldKey, Err: err})
				continue
			}
			sources = append(sources, src)
		}
	}

	compiled := make([]*formula.Formula, len(sources))
	errs := make([]error, len(sources))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src formula.Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			compiled[i], errs[i] = formula.Compile(ctx, src, opts.Env)
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, src := range sources {
		if errs[i] != nil {
			res.addFailure(logger, Failure{Label: src.Label, Model: src.Model, Field: src.Field, Err: errs[i]})
			continue
		}
		res.addFormula(logger, compiled[i])
	}

	for _, p := range processes {
		for _, t := range p.Triggers {
			if err := res.addProcessTrigger(p, t); err != nil {
				res.addFailure(logger, Failure{Label: p.Label, ProcessID: p.ID, Trigger: t.Name, Err: err})
			}
		}
	}

	logger.Info("trigger index built",
		"formulas", len(res.Formulas),
		"keys", len(res.Index.Keys()),
		"schedules", len(res.Index.Schedules()),
		"failures", len(res.Failures),
	)
	return res, nil
}

func (r *Result) addFormula(logger *slog.Logger, f *formula.Formula) {
	r.Formulas[f.ID] = f
	for _, dep := range f.Dependencies {
		r.Index.Add(dep.Key(), ir.FormulaTrigger(f.ID, dep.IsLocal))
	}

	if f.InferredType != "" && knownResultType(f.ResultType) && f.InferredType != f.ResultType {
		logger.Warn("formula result type differs from inferred type",
			"label", f.Label,
			"model", f.Model,
			"field", f.Field,
			"declared", f.ResultType,
			"inferred", f.InferredType,
		)
	}
	logger.Debug("formula indexed",
		"label", f.Label,
		"formula_id", f.ID,
		"dependencies", len(f.Dependencies),
	)
}

func (r *Result) addProcessTrigger(p ir.ProcessSpec, t ir.ProcessTrigger) error {
	ref := ir.ProcessTriggerRef(p.ID, t.Name)

	switch t.Kind {
	case ir.ProcessTriggerTime:
		expr, err := schedule.Normalize(t.Schedule)
		if err != nil {
			return err
		}
		r.Index.AddSchedule(expr, ref)
		return nil

	case ir.ProcessTriggerData:
		if t.Model == "" || len(t.Fields) == 0 {
			return fmt.Errorf("data trigger needs a model and at least one field")
		}
		for _, field := range t.Fields {
			r.Index.Add(ir.Key(t.Model, field), ref)
		}
		return nil

	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
}

func (r *Result) addFailure(logger *slog.Logger, f Failure) {
	r.Failures = append(r.Failures, f)
	if f.ProcessID != "" {
		logger.Error("process trigger rejected",
			"process_id", f.ProcessID,
			"label", f.Label,
			"trigger", f.Trigger,
			"error", f.Err,
		)
		return
	}
	logger.Error("formula compile failed",
		"label", f.Label,
		"model", f.Model,
		"field", f.Field,
		"code", formula.CodeOf(f.Err),
		"error", f.Err,
	)
}

func knownResultType(t string) bool {
	switch t {
	case "text", "number", "boolean":
		return true
	}
	return false
}
