package formula

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes compile and evaluation errors.
type ErrorCode string

const (
	// Compile-time codes.
	ErrCodeUnknownFunction         ErrorCode = "UNKNOWN_FUNCTION"
	ErrCodeBrokenRelationshipChain ErrorCode = "BROKEN_RELATIONSHIP_CHAIN"
	ErrCodeMissingModelMetadata    ErrorCode = "MISSING_MODEL_METADATA"
	ErrCodeTooDeeplyNested         ErrorCode = "TOO_DEEPLY_NESTED"
	ErrCodeSyntax                  ErrorCode = "SYNTAX_ERROR"
	ErrCodeArgumentCount           ErrorCode = "ARGUMENT_COUNT"
	ErrCodeNotAFormula             ErrorCode = "NOT_A_FORMULA"

	// Evaluation codes.
	ErrCodeMissingDocument ErrorCode = "MISSING_DOCUMENT"
	ErrCodeTypeMismatch    ErrorCode = "TYPE_MISMATCH"
	ErrCodeDivisionByZero  ErrorCode = "DIVISION_BY_ZERO"
	ErrCodeFunctionFailed  ErrorCode = "FUNCTION_FAILED"
)

// Error is a formula compile or evaluation failure.
//
// Label names the formula so a failure can be diagnosed from logs alone.
// Pos is the byte offset inside Expr, or -1 when unknown.
type Error struct {
	Code    ErrorCode
	Message string
	Label   string
	Expr    string
	Pos     int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Label != "" {
		fmt.Fprintf(&b, "formula %q: ", e.Label)
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Expr != "" {
		if e.Pos >= 0 {
			fmt.Fprintf(&b, " (expr=%q, pos=%d)", e.Expr, e.Pos)
		} else {
			fmt.Fprintf(&b, " (expr=%q)", e.Expr)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is (or wraps) a formula Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// CodeOf returns the code of a wrapped formula Error, or "" if none.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func newError(code ErrorCode, pos int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// withContext stamps the formula label and expression onto err.
// Fields already set by a deeper frame are kept.
func withContext(err error, label, expr string) error {
	var fe *Error
	if !errors.As(err, &fe) {
		return &Error{Code: ErrCodeFunctionFailed, Message: "evaluation failed", Label: label, Expr: expr, Pos: -1, Err: err}
	}
	if fe.Label == "" {
		fe.Label = label
	}
	if fe.Expr == "" {
		fe.Expr = expr
	}
	return err
}
