// Package metrics exposes Prometheus counters for the formula engine and the
// HTTP handler that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frontbase"

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing, so the engine can run without metrics.
type Metrics struct {
	FormulasCompiled *prometheus.CounterVec
	ChangeEvents     *prometheus.CounterVec
	TriggersFired    *prometheus.CounterVec
	FormulaWrites    *prometheus.CounterVec
	EvaluationErrors *prometheus.CounterVec
	ProcessRuns      *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		FormulasCompiled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "formulas_compiled_total",
				Help:      "Formula compilations by outcome",
			},
			[]string{"status"}, // "ok" / "failed"
		),
		ChangeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_events_total",
				Help:      "Change-feed events dispatched",
			},
			[]string{"operation"},
		),
		TriggersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_fired_total",
				Help:      "Triggers fired by change events",
			},
			[]string{"kind", "scope"}, // scope: local, foreign, process
		),
		FormulaWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "formula_writes_total",
				Help:      "Formula results by write outcome",
			},
			[]string{"outcome"}, // "written" / "unchanged" / "failed"
		),
		EvaluationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Formula evaluation failures by error code",
			},
			[]string{"code"},
		),
		ProcessRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_runs_total",
				Help:      "Scheduled process executions",
			},
			[]string{"source", "status"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time to dispatch the firing set of one change event",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Register registers every collector with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.FormulasCompiled,
		m.ChangeEvents,
		m.TriggersFired,
		m.FormulaWrites,
		m.EvaluationErrors,
		m.ProcessRuns,
		m.DispatchDuration,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Compiled(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.FormulasCompiled.WithLabelValues(status).Inc()
}

func (m *Metrics) ChangeEvent(operation string) {
	if m == nil {
		return
	}
	m.ChangeEvents.WithLabelValues(operation).Inc()
}

func (m *Metrics) TriggerFired(kind, scope string) {
	if m == nil {
		return
	}
	m.TriggersFired.WithLabelValues(kind, scope).Inc()
}

func (m *Metrics) FormulaWrite(outcome string) {
	if m == nil {
		return
	}
	m.FormulaWrites.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EvaluationError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.EvaluationErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ProcessRun(source string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.ProcessRuns.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}
