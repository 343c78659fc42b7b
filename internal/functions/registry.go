package functions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/roach88/frontbase/internal/ir"
)

// Unbounded marks a function without an upper argument limit.
const Unbounded = -1

// Context carries the formula being evaluated into a function call.
type Context struct {
	FormulaID string
	Label     string
	Model     string
}

// EvaluateFunc computes a function result from evaluated arguments.
// Implementations may block on ctx if they need to look up data.
type EvaluateFunc func(ctx context.Context, args []ir.Value, doc ir.Document, fc Context) (ir.Value, error)

// Function is the compile/evaluate contract of one formula function.
type Function struct {
	Name string

	// CompileDependencies returns the subset of raw argument texts that are
	// field references. Nil means no positional dependencies.
	CompileDependencies func(rawArgs []string) []string

	Evaluate EvaluateFunc

	// ProducesPreview reports whether Preview is a representative sample of
	// the result, usable for compile-time type inference.
	ProducesPreview bool
	Preview         ir.Value

	MinArgs int
	MaxArgs int // Unbounded for variadic
}

// CheckArity validates an argument count against the declared bounds.
func (f Function) CheckArity(n int) error {
	if n < f.MinArgs {
		return fmt.Errorf("%s expects at least %d argument(s), got %d", f.Name, f.MinArgs, n)
	}
	if f.MaxArgs != Unbounded && n > f.MaxArgs {
		return fmt.Errorf("%s expects at most %d argument(s), got %d", f.Name, f.MaxArgs, n)
	}
	return nil
}

// Registry is a closed name -> Function mapping. Lookups are case-insensitive.
// Safe for concurrent reads; there are no writers after construction.
type Registry struct {
	fns map[string]Function
}

// NewRegistry builds a registry from the given functions.
// Returns an error on duplicate names or incomplete definitions.
func NewRegistry(fns ...Function) (*Registry, error) {
	r := &Registry{fns: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		if fn.Name == "" {
			return nil, fmt.Errorf("function with empty name")
		}
		if fn.Evaluate == nil {
			return nil, fmt.Errorf("function %s: missing evaluate", fn.Name)
		}
		key := strings.ToUpper(fn.Name)
		if _, dup := r.fns[key]; dup {
			return nil, fmt.Errorf("duplicate function: %s", fn.Name)
		}
		r.fns[key] = fn
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(fns ...Function) *Registry {
	r, err := NewRegistry(fns...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns a registry holding the built-in functions.
func Default() *Registry {
	return MustRegistry(Builtins()...)
}

// Lookup finds a function by name.
func (r *Registry) Lookup(name string) (Function, bool) {
	if r == nil {
		return Function{}, false
	}
	fn, ok := r.fns[strings.ToUpper(name)]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for _, fn := range r.fns {
		names = append(names, fn.Name)
	}
	sort.Strings(names)
	return names
}

// FieldArguments returns the raw arguments that are bare field references:
// identifiers or dotted paths, not quoted strings, numbers, booleans or calls.
func FieldArguments(rawArgs []string) []string {
	var refs []string
	for _, raw := range rawArgs {
		arg := strings.TrimSpace(raw)
		if IsFieldReference(arg) {
			refs = append(refs, arg)
		}
	}
	return refs
}

// IsFieldReference reports whether text is a bare field reference.
func IsFieldReference(text string) bool {
	if text == "" {
		return false
	}
	switch strings.ToLower(text) {
	case "true", "false", "null":
		return false
	}
	for i, r := range text {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

