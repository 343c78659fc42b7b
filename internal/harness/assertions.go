package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/frontbase/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Step, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	if e.Type == TraceWrite {
		return fmt.Sprintf("write %s/%s.%s = %s", e.Model, e.Document, e.Field, canonical(e.Value))
	}
	return fmt.Sprintf("run %s/%s (%s)", e.Process, e.Trigger, e.Source)
}

// canonical renders a value as canonical JSON for messages.
func canonical(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// assertFieldEquals checks the final value of a document field.
// A missing expect value asserts null.
func assertFieldEquals(result *Result, assertion Assertion) error {
	doc, ok := result.Document(assertion.Document)
	if !ok {
		return &AssertionError{
			Type:     AssertFieldEquals,
			Expected: fmt.Sprintf("document %q to exist", assertion.Document),
			Actual:   "document not found",
		}
	}

	expected, err := ir.FromAny(assertion.Expect)
	if err != nil {
		return fmt.Errorf("field_equals: expect: %w", err)
	}
	actual := doc.Get(assertion.Field)

	if !ir.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertFieldEquals,
			Expected: fmt.Sprintf("%s.%s = %s", assertion.Document, assertion.Field, canonical(expected)),
			Actual:   fmt.Sprintf("%s.%s = %s", assertion.Document, assertion.Field, canonical(actual)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertWriteCount checks how many times a formula write-back changed a
// document field.
func assertWriteCount(result *Result, assertion Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if event.Type == TraceWrite && event.Document == assertion.Document && event.Field == assertion.Field {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertWriteCount,
			Expected: fmt.Sprintf("%s.%s written %d time(s)", assertion.Document, assertion.Field, assertion.Count),
			Actual:   fmt.Sprintf("written %d time(s)", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertProcessRan checks how many times a process ran, optionally
// narrowed to one trigger and source.
func assertProcessRan(result *Result, assertion Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if event.Type != TraceRun || event.Process != assertion.Process {
			continue
		}
		if assertion.Trigger != "" && event.Trigger != assertion.Trigger {
			continue
		}
		if assertion.Source != "" && event.Source != assertion.Source {
			continue
		}
		count++
	}

	if count != assertion.Count {
		target := assertion.Process
		if assertion.Trigger != "" {
			target += "/" + assertion.Trigger
		}
		return &AssertionError{
			Type:     AssertProcessRan,
			Expected: fmt.Sprintf("%s to run %d time(s)", target, assertion.Count),
			Actual:   fmt.Sprintf("ran %d time(s)", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
// All assertions are evaluated; failures do not stop evaluation.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertFieldEquals:
			err = assertFieldEquals(result, assertion)
		case AssertWriteCount:
			err = assertWriteCount(result, assertion)
		case AssertProcessRan:
			err = assertProcessRan(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d] (%s): %v", i, assertion.Type, err))
		}
	}

	return errs
}
