// Package trigger builds the index that decides what re-runs when data
// changes or a schedule ticks.
//
// The index maps "{model}:{field}" keys to formula and data-process
// triggers, and normalized schedule expressions to time-process triggers.
// It is built once per engine start by Build, which compiles every formula
// field concurrently and returns only after all compilations finished.
// After Build returns the index is read-only.
package trigger
