package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/metrics"
)

// DefaultWorkers is the default number of concurrent change-event workers.
const DefaultWorkers = 4

// WritePolicy decides when a local formula result is written back.
type WritePolicy string

const (
	// WriteAsymmetric writes local results unconditionally and foreign
	// results only when they differ from the stored value.
	WriteAsymmetric WritePolicy = "asymmetric"
	// WriteChangeChecked compares local results too before writing.
	WriteChangeChecked WritePolicy = "change-checked"
)

// ParseWritePolicy parses a configured write policy. Empty selects
// WriteAsymmetric.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(s) {
	case "", WriteAsymmetric:
		return WriteAsymmetric, nil
	case WriteChangeChecked:
		return WriteChangeChecked, nil
	default:
		return "", fmt.Errorf("unknown write policy %q (want %s or %s)", s, WriteAsymmetric, WriteChangeChecked)
	}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithWorkers sets the number of change events dispatched concurrently.
// Values below 1 are ignored.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithWritePolicy sets the local write-back policy.
func WithWritePolicy(p WritePolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithCompileConcurrency bounds concurrent formula compilation at Start.
func WithCompileConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.compileConcurrency = n
	}
}

// WithMaxDepth sets the expression nesting bound.
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithIDGenerator sets the tag id generator. Tests use a
// formula.SequenceGenerator for stable templates.
func WithIDGenerator(g formula.IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithMetrics records engine activity in m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
