package formula

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/frontbase/internal/functions"
	"github.com/roach88/frontbase/internal/ir"
)

// Source is the raw definition of one formula field.
type Source struct {
	Raw        string
	Model      string
	Field      string
	Label      string
	ResultType string
	Mode       Delimiter
}

// FromField builds the Source of a formula field of m.
func FromField(m ir.Model, fieldKey string) (Source, error) {
	def, ok := m.Field(fieldKey)
	if !ok {
		return Source{}, newError(ErrCodeNotAFormula, -1, "model %q has no field %q", m.Key, fieldKey)
	}
	if def.Kind != ir.FieldFormula {
		return Source{}, newError(ErrCodeNotAFormula, -1, "field %s.%s is %s", m.Key, fieldKey, def.Kind)
	}
	mode, err := ParseDelimiter(def.Delimiter)
	if err != nil {
		return Source{}, &Error{Code: ErrCodeSyntax, Message: err.Error(), Pos: -1}
	}

	label := def.Label
	if label == "" {
		label = m.Key + "." + fieldKey
	}
	return Source{
		Raw:        def.Formula,
		Model:      m.Key,
		Field:      fieldKey,
		Label:      label,
		ResultType: def.ResultType,
		Mode:       mode,
	}, nil
}

// Env holds what compilation needs beyond the formula text.
// Zero fields select defaults: UUID tag ids, the built-in registry and
// DefaultMaxDepth.
type Env struct {
	Models   ir.Models
	Registry *functions.Registry
	IDs      IDGenerator
	MaxDepth int
}

func (e Env) withDefaults() Env {
	if e.Registry == nil {
		e.Registry = functions.Default()
	}
	if e.IDs == nil {
		e.IDs = UUIDGenerator{}
	}
	if e.MaxDepth <= 0 {
		e.MaxDepth = DefaultMaxDepth
	}
	return e
}

// Formula is a compiled formula. Immutable after Compile.
type Formula struct {
	ID           string
	Label        string
	Raw          string
	Template     string
	Tags         []ir.Tag
	Dependencies []ir.Dependency
	Model        string
	Field        string
	ResultType   string
	Mode         Delimiter

	// InferredType is the result type derived from literals and function
	// previews, or "" when it can only be known at evaluation time.
	InferredType string

	exprs    map[string]Node // tag id -> parsed expression
	sole     string          // tag id when the template is exactly one placeholder
	combined Node            // template as an expression over placeholders
	registry *functions.Registry
	models   ir.Models
}

// Compile extracts the tags of src, parses each one and resolves its
// dependencies. Any failure is returned as a *Error carrying the label.
func Compile(ctx context.Context, src Source, env Env) (*Formula, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env = env.withDefaults()
	if src.Mode == "" {
		src.Mode = DelimiterCurly
	}

	template, tags := ExtractTags(src.Raw, src.Mode, env.IDs)
	f := &Formula{
		ID:         ir.FormulaID(src.Model, src.Field),
		Label:      src.Label,
		Raw:        src.Raw,
		Template:   template,
		Tags:       tags,
		Model:      src.Model,
		Field:      src.Field,
		ResultType: src.ResultType,
		Mode:       src.Mode,
		exprs:      make(map[string]Node, len(tags)),
		registry:   env.Registry,
		models:     env.Models,
	}

	resolver := &Resolver{Models: env.Models, Registry: env.Registry, MaxDepth: env.MaxDepth}
	for _, tag := range tags {
		node, err := Parse(tag.Expr, env.MaxDepth)
		if err != nil {
			return nil, withContext(err, src.Label, tag.Expr)
		}
		deps, err := resolver.ResolveNode(node, src.Model)
		if err != nil {
			return nil, withContext(err, src.Label, tag.Expr)
		}
		f.exprs[tag.ID] = node
		f.Dependencies = append(f.Dependencies, deps...)
	}

	f.plan(env.MaxDepth)
	return f, nil
}

// plan decides how tag values are combined into the field value.
func (f *Formula) plan(maxDepth int) {
	if len(f.Tags) == 1 && strings.TrimSpace(f.Template) == Placeholder(f.Tags[0].ID) {
		f.sole = f.Tags[0].ID
		f.InferredType = f.inferType(f.exprs[f.sole])
		return
	}

	if len(f.Tags) > 0 {
		if node, err := Parse(f.Template, maxDepth); err == nil && f.combinable(node) {
			f.combined = node
			f.InferredType = f.inferType(node)
			return
		}
	}
	f.InferredType = "text"
}

// combinable reports whether node uses only placeholders, literals,
// operators and registered calls, and has at least one placeholder.
func (f *Formula) combinable(node Node) bool {
	placeholders := 0
	var walk func(Node) bool
	walk = func(n Node) bool {
		switch n := n.(type) {
		case *PlaceholderRef:
			if _, ok := f.exprs[n.ID]; !ok {
				return false
			}
			placeholders++
			return true
		case *Literal:
			return true
		case *Unary:
			return walk(n.Operand)
		case *Binary:
			return walk(n.Left) && walk(n.Right)
		case *Call:
			fn, ok := f.registry.Lookup(n.Name)
			if !ok || fn.CheckArity(len(n.Args)) != nil {
				return false
			}
			for _, arg := range n.Args {
				if !walk(arg) {
					return false
				}
			}
			return true
		default:
			return false
		}
	}
	return walk(node) && placeholders > 0
}

func (f *Formula) inferType(node Node) string {
	switch n := node.(type) {
	case *Literal:
		return ir.TypeName(n.Value)
	case *PlaceholderRef:
		if expr, ok := f.exprs[n.ID]; ok {
			return f.inferType(expr)
		}
		return ""
	case *Call:
		fn, ok := f.registry.Lookup(n.Name)
		if ok && fn.ProducesPreview {
			return ir.TypeName(fn.Preview)
		}
		return ""
	case *Unary:
		return "number"
	case *Binary:
		if n.Op != '+' {
			return "number"
		}
		left, right := f.inferType(n.Left), f.inferType(n.Right)
		switch {
		case left == "text" || right == "text":
			return "text"
		case left == "number" && right == "number":
			return "number"
		default:
			return ""
		}
	default:
		return ""
	}
}

// Expr returns the parsed expression of a tag.
func (f *Formula) Expr(tagID string) (Node, bool) {
	n, ok := f.exprs[tagID]
	return n, ok
}

// String returns a short description for logs.
func (f *Formula) String() string {
	return fmt.Sprintf("%s (%s.%s)", f.Label, f.Model, f.Field)
}
