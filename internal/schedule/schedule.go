package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Presets maps named schedules to their cron expressions.
var Presets = map[string]string{
	"every_minute": "* * * * *",
	"hourly":       "0 * * * *",
	"daily":        "0 0 * * *",
	"weekly":       "0 0 * * 0",
	"monthly":      "0 0 1 * *",
	"yearly":       "0 0 1 1 *",
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseError reports a malformed schedule string.
type ParseError struct {
	Spec string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %v", e.Spec, e.Err)
}

// Unwrap returns the underlying parser error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError returns true if err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Resolve maps a preset name to its expression. Anything else is returned
// trimmed and unchanged.
func Resolve(spec string) string {
	s := strings.TrimSpace(spec)
	if expr, ok := Presets[strings.ToLower(s)]; ok {
		return expr
	}
	return s
}

// Normalize resolves presets and validates the resulting expression.
// The returned expression is the key the trigger index uses.
func Normalize(spec string) (string, error) {
	expr := Resolve(spec)
	if expr == "" {
		return "", &ParseError{Spec: spec, Err: errors.New("empty schedule")}
	}
	if _, err := parser.Parse(expr); err != nil {
		return "", &ParseError{Spec: spec, Err: err}
	}
	return expr, nil
}

// Next returns the first activation of spec strictly after from.
func Next(spec string, from time.Time) (time.Time, error) {
	expr, err := Normalize(spec)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, &ParseError{Spec: spec, Err: err}
	}
	return sched.Next(from), nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
