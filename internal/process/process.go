// Package process defines the contract between the engine and scheduled
// process executors.
//
// A Process is an opaque unit that performs side effects when one of its
// declared triggers fires. The engine builds one instance per process id at
// startup through a Factory and never inspects what it does.
package process

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/frontbase/internal/ir"
)

// Source says why a process run was started.
type Source string

const (
	SourceTime Source = "time"
	SourceData Source = "data"
)

// RuntimeContext describes a single run. It carries no initiating user or
// request data; RunID only correlates log lines of one run.
type RuntimeContext struct {
	RunID  string
	Source Source
}

// NewRuntimeContext returns a context with a fresh UUIDv7 run id.
func NewRuntimeContext(source Source) RuntimeContext {
	return RuntimeContext{RunID: uuid.Must(uuid.NewV7()).String(), Source: source}
}

// Process executes the side effects of a scheduled process.
// Execute may be called concurrently, including overlapping runs of the
// same trigger.
type Process interface {
	Execute(ctx context.Context, trigger ir.ProcessTrigger, rc RuntimeContext) error
}

// Factory builds a Process from its stored definition and the security
// context it runs under.
type Factory func(spec ir.ProcessSpec, sc ir.SecurityContext) (Process, error)

// ElevatedUser is the user id of the engine's elevated security context.
const ElevatedUser = "engine"

// ElevatedContext returns the security context processes run under when
// started by the engine.
func ElevatedContext() ir.SecurityContext {
	return ir.SecurityContext{UserID: ElevatedUser, Permissions: []string{"*"}}
}

// LogFactory returns a Factory whose processes only log their runs.
// Used by hosts that have no executor wired in.
func LogFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(spec ir.ProcessSpec, sc ir.SecurityContext) (Process, error) {
		return &logProcess{spec: spec, sc: sc, logger: logger}, nil
	}
}

type logProcess struct {
	spec   ir.ProcessSpec
	sc     ir.SecurityContext
	logger *slog.Logger
}

func (p *logProcess) Execute(ctx context.Context, trigger ir.ProcessTrigger, rc RuntimeContext) error {
	p.logger.InfoContext(ctx, "process executed",
		"process_id", p.spec.ID,
		"label", p.spec.Label,
		"trigger", trigger.Name,
		"kind", trigger.Kind,
		"source", rc.Source,
		"run_id", rc.RunID,
		"user", p.sc.UserID,
	)
	return nil
}
