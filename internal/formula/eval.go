package formula

import (
	"context"
	"strings"

	"github.com/roach88/frontbase/internal/functions"
	"github.com/roach88/frontbase/internal/ir"
)

// Accessor fetches related documents while a relationship path is walked.
// Any error is reported as MISSING_DOCUMENT.
type Accessor interface {
	FindDocument(ctx context.Context, model, id string) (ir.Document, error)
}

// Evaluate computes the formula's value for doc.
//
// Tag expressions are evaluated depth first, left to right. Relationship
// fields hold the related document id; acc fetches the related document
// whenever a path leaves doc. The result is coerced to ResultType.
//
// Evaluate never mutates f and is safe for concurrent use.
func (f *Formula) Evaluate(ctx context.Context, doc ir.Document, acc Accessor) (ir.Value, error) {
	ev := &evaluator{
		f:      f,
		doc:    doc,
		acc:    acc,
		values: make(map[string]ir.Value, len(f.Tags)),
	}
	for _, tag := range f.Tags {
		v, err := ev.eval(ctx, f.exprs[tag.ID])
		if err != nil {
			return nil, withContext(err, f.Label, tag.Expr)
		}
		ev.values[tag.ID] = v
	}

	result, err := ev.combine(ctx)
	if err != nil {
		return nil, withContext(err, f.Label, f.Raw)
	}
	out, err := Coerce(result, f.ResultType)
	if err != nil {
		return nil, withContext(err, f.Label, f.Raw)
	}
	return out, nil
}

type evaluator struct {
	f      *Formula
	doc    ir.Document
	acc    Accessor
	values map[string]ir.Value // tag id -> value
}

func (ev *evaluator) combine(ctx context.Context) (ir.Value, error) {
	if ev.f.sole != "" {
		return ev.values[ev.f.sole], nil
	}
	if ev.f.combined != nil {
		v, err := ev.eval(ctx, ev.f.combined)
		if err == nil {
			return v, nil
		}
		if !IsCode(err, ErrCodeTypeMismatch) {
			return nil, err
		}
	}
	return ir.String(ev.interpolate()), nil
}

func (ev *evaluator) interpolate() string {
	pairs := make([]string, 0, 2*len(ev.f.Tags))
	for _, tag := range ev.f.Tags {
		pairs = append(pairs, Placeholder(tag.ID), ir.Render(ev.values[tag.ID]))
	}
	return strings.NewReplacer(pairs...).Replace(ev.f.Template)
}

func (ev *evaluator) eval(ctx context.Context, node Node) (ir.Value, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil

	case *PlaceholderRef:
		v, ok := ev.values[n.ID]
		if !ok {
			return nil, newError(ErrCodeSyntax, n.Pos(), "unknown placeholder %s", n.ID)
		}
		return v, nil

	case *Path:
		return ev.path(ctx, n)

	case *Call:
		return ev.call(ctx, n)

	case *Unary:
		v, err := ev.eval(ctx, n.Operand)
		if err != nil {
			return nil, err
		}
		num, err := toNumber(v, n.Pos())
		if err != nil {
			return nil, err
		}
		return -num, nil

	case *Binary:
		left, err := ev.eval(ctx, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := ev.eval(ctx, n.Right)
		if err != nil {
			return nil, err
		}
		return arith(n.Op, left, right, n.Pos())

	default:
		return nil, newError(ErrCodeSyntax, node.Pos(), "unsupported expression %q", node.Raw())
	}
}

func (ev *evaluator) call(ctx context.Context, call *Call) (ir.Value, error) {
	fn, ok := ev.f.registry.Lookup(call.Name)
	if !ok {
		return nil, newError(ErrCodeUnknownFunction, call.Pos(), "unknown function %s", call.Name)
	}

	args := make([]ir.Value, len(call.Args))
	for i, arg := range call.Args {
		v, err := ev.eval(ctx, arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	fc := functions.Context{FormulaID: ev.f.ID, Label: ev.f.Label, Model: ev.f.Model}
	v, err := fn.Evaluate(ctx, args, ev.doc, fc)
	if err != nil {
		if CodeOf(err) != "" {
			return nil, err
		}
		return nil, &Error{Code: ErrCodeFunctionFailed, Message: fn.Name + " failed", Pos: call.Pos(), Err: err}
	}
	if v == nil {
		return ir.Null{}, nil
	}
	return v, nil
}

// path reads a field reference from the document, following relationship
// segments through the accessor.
func (ev *evaluator) path(ctx context.Context, p *Path) (ir.Value, error) {
	segs := p.Segments
	if !isRelationshipPath(segs) {
		return lookupField(ev.doc.Fields, strings.Join(segs, ".")), nil
	}

	current := ev.doc
	modelKey := ev.f.Model
	for i, seg := range segs {
		if !hasMarker(seg) {
			return lookupField(current.Fields, strings.Join(segs[i:], ".")), nil
		}

		fieldName := strings.TrimSuffix(seg, RelationshipMarker)
		def, ok := ev.f.models[modelKey].Fields[fieldName]
		if !ok || def.Kind != ir.FieldRelationship {
			return nil, newError(ErrCodeBrokenRelationshipChain, p.Pos(), "%s.%s is not a relationship", modelKey, fieldName)
		}

		ref := current.Get(fieldName)
		if i == len(segs)-1 {
			return ref, nil
		}
		var id ir.String
		switch r := ref.(type) {
		case ir.Null:
			return ir.Null{}, nil
		case ir.String:
			id = r
		default:
			return nil, newError(ErrCodeTypeMismatch, p.Pos(), "relationship %s.%s holds %s, want text id", modelKey, fieldName, ir.TypeName(ref))
		}

		if ev.acc == nil {
			return nil, newError(ErrCodeMissingDocument, p.Pos(), "no accessor to fetch %s %q", def.Target, id)
		}
		related, err := ev.acc.FindDocument(ctx, def.Target, string(id))
		if err != nil {
			return nil, &Error{Code: ErrCodeMissingDocument, Message: "fetch " + def.Target + " " + string(id), Pos: p.Pos(), Err: err}
		}
		current = related
		modelKey = def.Target
	}
	return ir.Null{}, nil
}

// lookupField returns fields[name], or walks nested objects when name is a
// dotted path with no top-level entry.
func lookupField(fields ir.Object, name string) ir.Value {
	if v, ok := fields[name]; ok && v != nil {
		return v
	}
	if !strings.Contains(name, ".") {
		return ir.Null{}
	}
	var cur ir.Value = fields
	for _, part := range strings.Split(name, ".") {
		obj, ok := cur.(ir.Object)
		if !ok {
			return ir.Null{}
		}
		cur = obj.Get(part)
	}
	return cur
}

func arith(op byte, left, right ir.Value, pos int) (ir.Value, error) {
	if op == '+' && (isText(left) || isText(right)) {
		return ir.String(ir.Render(left) + ir.Render(right)), nil
	}
	a, err := toNumber(left, pos)
	if err != nil {
		return nil, err
	}
	b, err := toNumber(right, pos)
	if err != nil {
		return nil, err
	}
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return nil, newError(ErrCodeDivisionByZero, pos, "division by zero")
		}
		return a / b, nil
	default:
		return nil, newError(ErrCodeSyntax, pos, "unknown operator %q", op)
	}
}

func isText(v ir.Value) bool {
	_, ok := v.(ir.String)
	return ok
}

// toNumber converts an operand for arithmetic. Null counts as zero.
func toNumber(v ir.Value, pos int) (ir.Number, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return 0, nil
	case ir.Number:
		return val, nil
	case ir.String:
		if n, ok := ir.ParseNumber(string(val)); ok {
			return n, nil
		}
	}
	return 0, newError(ErrCodeTypeMismatch, pos, "%s operand is not a number", ir.TypeName(v))
}

// Coerce converts v to a declared result type: text, number or boolean.
// Other result types return v unchanged. Null stays Null, except that a
// boolean result treats Null as false.
func Coerce(v ir.Value, resultType string) (ir.Value, error) {
	if v == nil {
		v = ir.Null{}
	}
	switch strings.ToLower(resultType) {
	case "text":
		switch v.(type) {
		case ir.Null, ir.String:
			return v, nil
		}
		return ir.String(ir.Render(v)), nil

	case "number":
		switch val := v.(type) {
		case ir.Null, ir.Number:
			return v, nil
		case ir.Bool:
			if val {
				return ir.Number(1), nil
			}
			return ir.Number(0), nil
		case ir.String:
			if n, ok := ir.ParseNumber(string(val)); ok {
				return n, nil
			}
		}

	case "boolean":
		switch val := v.(type) {
		case ir.Bool:
			return v, nil
		case ir.Null:
			return ir.Bool(false), nil
		case ir.Number:
			return ir.Bool(val != 0), nil
		case ir.String:
			switch strings.ToLower(strings.TrimSpace(string(val))) {
			case "true":
				return ir.Bool(true), nil
			case "false":
				return ir.Bool(false), nil
			}
		}

	default:
		return v, nil
	}
	return nil, newError(ErrCodeTypeMismatch, -1, "cannot convert %s to %s", ir.TypeName(v), resultType)
}
