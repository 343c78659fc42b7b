// Package store provides the SQLite-backed document store the formula
// engine reads and writes.
//
// The store holds three kinds of records:
//   - Models: data-model definitions, one JSON object per model key
//   - Processes: scheduled-process definitions
//   - Documents: model records, fields stored as a JSON object
//
// Every committed document write is published on an in-process change
// feed (Subscribe). An insert reports all field keys as changed; an update
// reports only the keys whose canonical value differs. An update that
// changes nothing publishes nothing, which is what stops formula write-backs
// from re-triggering themselves forever.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Query results are ordered by id COLLATE BINARY so scans are reproducible.
package store
