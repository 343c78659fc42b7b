// Package engine implements the frontbase reactive formula engine.
//
// The engine keeps formula fields of stored documents up to date. At startup
// it compiles every formula field of the model metadata, indexes each
// formula under the (model, field) pairs it reads, and indexes scheduled
// processes under their data and time triggers. It then follows the
// store's change feed and the scheduler's clock.
//
// ARCHITECTURE:
//
// Startup barrier:
// Start compiles formulas concurrently (bounded) and waits for all of them
// before registering schedules or subscribing to the change feed. Nothing
// fires against a half-built index.
//
// Event Processing Flow:
//  1. The store publishes a ChangeEvent after each committed insert or update
//  2. Run moves events from the feed into an unbounded FIFO queue
//  3. A pool of workers dequeues events and calls HandleEvent
//  4. HandleEvent looks up the firing set for (model, changed fields) and
//     dispatches every trigger concurrently
//  5. Formula results are written back through the store, whose own change
//     events drive the next round of dependents
//
// Write-back:
// A local formula (inputs on the same document) is written unconditionally
// under WriteAsymmetric; the store suppresses events for unchanged values.
// A foreign formula (inputs reached through relationships) is re-evaluated
// for every document of its model and written only where the value changed.
// Evaluate-then-write is serialized per document.
//
// Time triggers:
// Each distinct schedule is registered once with the Scheduler. A tick
// starts every matching process fire-and-forget under the elevated security
// context; overlapping runs are allowed.
//
// Errors never abort a firing set: each failed trigger is logged as a
// DispatchError with its formula label or process id.
package engine
