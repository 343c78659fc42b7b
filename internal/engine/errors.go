package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/frontbase/internal/ir"
)

// ErrNotStarted is returned by Run when Start has not completed.
var ErrNotStarted = errors.New("engine not started")

// DispatchError is the failure of one fired trigger.
//
// Model and DocumentID identify the change event (or, for scheduled runs,
// are empty). A DispatchError never aborts the rest of the firing set.
type DispatchError struct {
	Trigger    ir.Trigger
	Model      string
	DocumentID string
	Err        error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	var target string
	switch e.Trigger.Kind {
	case ir.TriggerProcess:
		target = fmt.Sprintf("process %s trigger %q", e.Trigger.ProcessID, e.Trigger.TriggerName)
	default:
		scope := "foreign"
		if e.Trigger.IsLocal {
			scope = "local"
		}
		target = fmt.Sprintf("%s formula %s", scope, e.Trigger.FormulaID)
	}
	if e.DocumentID != "" {
		return fmt.Sprintf("dispatch %s for %s/%s: %v", target, e.Model, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", target, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError returns true if err is or wraps a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
