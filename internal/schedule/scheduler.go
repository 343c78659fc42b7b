package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler invokes callbacks at the instants a cron expression matches.
type Scheduler interface {
	// Schedule registers fn under expr. Returns a *ParseError if expr is
	// malformed.
	Schedule(expr string, fn func()) error
	// Start begins firing registered callbacks.
	Start()
	// Stop halts the scheduler and waits for running callbacks, or for ctx.
	Stop(ctx context.Context) error
}

// CronScheduler is a Scheduler backed by robfig/cron.
//
// Thread-safety: all methods are safe for concurrent use.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler creates a scheduler evaluating expressions in loc.
// A nil loc selects time.Local. Callback panics are recovered and logged.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &CronScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
	}
}

// Schedule implements Scheduler.
func (s *CronScheduler) Schedule(expr string, fn func()) error {
	if _, err := s.cron.AddFunc(expr, fn); err != nil {
		return &ParseError{Spec: expr, Err: err}
	}
	return nil
}

// Start implements Scheduler.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop implements Scheduler.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the number of registered callbacks.
func (s *CronScheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
