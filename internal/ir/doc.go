// Package ir provides the shared data model for the formula engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Models are immutable for the lifetime of one engine run
//   - Document values are restricted to the sealed Value set (JSON shaped)
//   - Triggers are comparable values so a firing set can deduplicate them
//   - All JSON tags use snake_case
package ir
