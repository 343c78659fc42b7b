package formula

import (
	"strings"

	"github.com/roach88/frontbase/internal/functions"
	"github.com/roach88/frontbase/internal/ir"
)

// RelationshipMarker suffixes a path segment that follows a relationship
// field, e.g. account__r.owner__r.name.
const RelationshipMarker = "__r"

// Resolver derives the dependencies of tag expressions.
//
// Models may be nil when no relationship paths are expected; resolving a
// relationship path without metadata fails with MISSING_MODEL_METADATA.
type Resolver struct {
	Models   ir.Models
	Registry *functions.Registry
	MaxDepth int
}

// Resolve parses expr and returns its dependencies relative to origin, in
// source order. Duplicates across operands are kept.
func (r *Resolver) Resolve(expr, origin string) ([]ir.Dependency, error) {
	node, err := Parse(expr, r.maxDepth())
	if err != nil {
		return nil, err
	}
	return r.ResolveNode(node, origin)
}

// ResolveNode returns the dependencies of an already parsed expression.
func (r *Resolver) ResolveNode(node Node, origin string) ([]ir.Dependency, error) {
	return r.resolve(node, origin, 0)
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

func (r *Resolver) resolve(node Node, origin string, depth int) ([]ir.Dependency, error) {
	if depth > r.maxDepth() {
		return nil, newError(ErrCodeTooDeeplyNested, node.Pos(), "dependency resolution exceeds %d levels", r.maxDepth())
	}

	switch n := node.(type) {
	case *Literal, *PlaceholderRef:
		return nil, nil

	case *Unary:
		return r.resolve(n.Operand, origin, depth+1)

	case *Binary:
		left, err := r.resolve(n.Left, origin, depth+1)
		if err != nil {
			return nil, err
		}
		right, err := r.resolve(n.Right, origin, depth+1)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	case *Call:
		return r.resolveCall(n, origin, depth)

	case *Path:
		return r.resolvePath(n, origin)

	default:
		return nil, newError(ErrCodeSyntax, node.Pos(), "unsupported expression %q", node.Raw())
	}
}

// resolveCall unions the dependencies found structurally in each argument
// with the ones the function reports by argument position.
func (r *Resolver) resolveCall(call *Call, origin string, depth int) ([]ir.Dependency, error) {
	fn, ok := r.Registry.Lookup(call.Name)
	if !ok {
		return nil, newError(ErrCodeUnknownFunction, call.Pos(), "unknown function %s", call.Name)
	}
	if err := fn.CheckArity(len(call.Args)); err != nil {
		return nil, &Error{Code: ErrCodeArgumentCount, Message: err.Error(), Pos: call.Pos()}
	}

	var deps []ir.Dependency
	for _, arg := range call.Args {
		argDeps, err := r.resolve(arg, origin, depth+1)
		if err != nil {
			return nil, err
		}
		deps = append(deps, argDeps...)
	}

	if fn.CompileDependencies != nil {
		for _, expr := range fn.CompileDependencies(call.RawArgs) {
			node, err := Parse(expr, r.maxDepth())
			if err != nil {
				return nil, err
			}
			extra, err := r.resolve(node, origin, depth+1)
			if err != nil {
				return nil, err
			}
			deps = append(deps, extra...)
		}
	}

	return union(deps), nil
}

// resolvePath classifies a field reference:
//   - relationship path: walked through model metadata
//   - plain dotted path: one opaque local field
//   - bare identifier: one local field
func (r *Resolver) resolvePath(path *Path, origin string) ([]ir.Dependency, error) {
	if !isRelationshipPath(path.Segments) {
		return []ir.Dependency{{Model: origin, Field: path.Raw(), IsLocal: true}}, nil
	}
	if r.Models == nil {
		return nil, newError(ErrCodeMissingModelMetadata, path.Pos(), "relationship path %q needs model metadata", path.Raw())
	}

	var deps []ir.Dependency
	current := origin
	hops := 0
	for i, seg := range path.Segments {
		if !hasMarker(seg) {
			// Terminal field, or an opaque nested field on the current model.
			field := strings.Join(path.Segments[i:], ".")
			return append(deps, ir.Dependency{Model: current, Field: field, IsLocal: hops == 0}), nil
		}

		fieldName := strings.TrimSuffix(seg, RelationshipMarker)
		deps = append(deps, ir.Dependency{Model: current, Field: fieldName, IsLocal: hops == 0})

		model, ok := r.Models[current]
		if !ok {
			return nil, newError(ErrCodeMissingModelMetadata, path.Pos(), "no metadata for model %q", current)
		}
		def, ok := model.Field(fieldName)
		if !ok {
			return nil, newError(ErrCodeBrokenRelationshipChain, path.Pos(), "model %q has no field %q", current, fieldName)
		}
		if def.Kind != ir.FieldRelationship {
			return nil, newError(ErrCodeBrokenRelationshipChain, path.Pos(), "field %s.%s is %s, not a relationship", current, fieldName, def.Kind)
		}
		current = def.Target
		hops++
	}

	return deps, nil
}

func isRelationshipPath(segments []string) bool {
	for _, seg := range segments {
		if hasMarker(seg) {
			return true
		}
	}
	return false
}

func hasMarker(seg string) bool {
	return len(seg) > len(RelationshipMarker) && strings.HasSuffix(seg, RelationshipMarker)
}

// union removes duplicates keeping first-occurrence order.
func union(deps []ir.Dependency) []ir.Dependency {
	if len(deps) < 2 {
		return deps
	}
	seen := make(map[ir.Dependency]bool, len(deps))
	out := deps[:0:0]
	for _, d := range deps {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
