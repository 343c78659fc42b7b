// Package schedule turns schedule strings into cron registrations.
//
// A schedule string is either a cron expression (5 fields, or 6 with a
// leading seconds field), a robfig descriptor such as "@every 5m", or one
// of the named presets in Presets. Normalize resolves presets and validates
// the result; the Scheduler interface is what the engine registers ticks on.
package schedule
