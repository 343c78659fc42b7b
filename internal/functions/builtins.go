package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/frontbase/internal/ir"
)

// Builtins returns the built-in function set.
func Builtins() []Function {
	return []Function{And, Or, Not, If, Concat}
}

// And returns true if ALL arguments are boolean true.
//
//	AND(isActive, isVerified)
var And = Function{
	Name:                "AND",
	CompileDependencies: FieldArguments,
	Evaluate: func(_ context.Context, args []ir.Value, _ ir.Document, _ Context) (ir.Value, error) {
		for _, arg := range args {
			if !isTrue(arg) {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	},
	ProducesPreview: true,
	Preview:         ir.Bool(true),
	MinArgs:         0,
	MaxArgs:         Unbounded,
}

// Or returns true if ANY argument is boolean true.
var Or = Function{
	Name:                "OR",
	CompileDependencies: FieldArguments,
	Evaluate: func(_ context.Context, args []ir.Value, _ ir.Document, _ Context) (ir.Value, error) {
		for _, arg := range args {
			if isTrue(arg) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	},
	ProducesPreview: true,
	Preview:         ir.Bool(false),
	MinArgs:         0,
	MaxArgs:         Unbounded,
}

// Not negates a single argument. Anything but boolean true negates to true.
var Not = Function{
	Name:                "NOT",
	CompileDependencies: FieldArguments,
	Evaluate: func(_ context.Context, args []ir.Value, _ ir.Document, _ Context) (ir.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("NOT expects 1 argument, got %d", len(args))
		}
		return ir.Bool(!isTrue(args[0])), nil
	},
	ProducesPreview: true,
	Preview:         ir.Bool(true),
	MinArgs:         1,
	MaxArgs:         1,
}

// If picks its second argument when the first is boolean true, else its third.
// The result type follows the branches, so IF offers no preview.
var If = Function{
	Name: "IF",
	CompileDependencies: func(rawArgs []string) []string {
		return FieldArguments(rawArgs)
	},
	Evaluate: func(_ context.Context, args []ir.Value, _ ir.Document, _ Context) (ir.Value, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("IF expects 3 arguments, got %d", len(args))
		}
		if isTrue(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	},
	MinArgs: 3,
	MaxArgs: 3,
}

// Concat joins the text rendering of every argument.
var Concat = Function{
	Name:                "CONCAT",
	CompileDependencies: FieldArguments,
	Evaluate: func(_ context.Context, args []ir.Value, _ ir.Document, _ Context) (ir.Value, error) {
		var b strings.Builder
		for _, arg := range args {
			b.WriteString(ir.Render(arg))
		}
		return ir.String(b.String()), nil
	},
	ProducesPreview: true,
	Preview:         ir.String(""),
	MinArgs:         1,
	MaxArgs:         Unbounded,
}

func isTrue(v ir.Value) bool {
	b, ok := v.(ir.Bool)
	return ok && bool(b)
}
