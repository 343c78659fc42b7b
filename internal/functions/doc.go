// Package functions implements the closed formula function registry.
//
// Each function exposes three things:
//   - CompileDependencies: picks the raw arguments that are bare field
//     references, so the dependency resolver can register them
//   - Evaluate: pure computation over already-evaluated arguments
//   - ProducesPreview: whether the result shape is known without live data
//
// The registry is built once at startup and never mutated afterwards.
// Unknown names are a compile error, never a runtime lookup failure.
package functions
