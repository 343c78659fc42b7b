// Package formula compiles and evaluates formula fields.
//
// Compilation runs in two steps:
//  1. Tag extraction: every {{ ... }} (or [[ ... ]]) sub-expression is
//     replaced by an opaque placeholder and recorded as an ir.Tag
//  2. Dependency resolution: each tag is tokenized, parsed into a small
//     expression tree and walked to find the (model, field) pairs the
//     formula reads, following relationship chains through model metadata
//
// Evaluation walks the same trees against a concrete document, fetching
// related documents through an Accessor when a relationship chain leaves
// the local document.
//
// Grammar (additive expressions of calls, paths and literals):
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := '-' unary | primary
//	primary := literal | placeholder | call | path | '(' expr ')'
//	call    := IDENT '(' [expr (',' expr)*] ')'
//
// Identifiers start with a letter of any script or '_' and continue with
// letters, digits, '_' and '.'.
//
// A Formula is immutable once compiled and safe for concurrent evaluation.
package formula
