package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
)

// CompileModel parses a CUE value into a Model.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: Contact: { fields: { ... } }`)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model.Contact")))
//
// Field shape:
//
//	first:    { type: "scalar" }
//	account:  { type: "relationship", target: "Account" }
//	fullName: { type: "formula", formula: "{{first}} {{last}}", result: "text" }
func CompileModel(v cue.Value) (*ir.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.Model{Fields: make(map[string]ir.FieldDefinition)}
	m.Key = selectorName(v)

	label, err := optionalString(v, "label")
	if err != nil {
		return nil, err
	}
	m.Label = label
	if m.Label == "" {
		m.Label = m.Key
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := strings.Trim(iter.Label(), `"`)
		def, err := compileField(iter.Value())
		if err != nil {
			return nil, err
		}
		m.Fields[name] = def
	}

	if len(m.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	return m, nil
}

func compileField(v cue.Value) (ir.FieldDefinition, error) {
	var def ir.FieldDefinition

	kind, err := optionalString(v, "type")
	if err != nil {
		return def, err
	}
	if kind == "" {
		kind = string(ir.FieldScalar)
	}
	def.Kind = ir.FieldKind(kind)
	if !ir.ValidFieldKinds[def.Kind] {
		return def, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unknown field type %q (want scalar, relationship or formula)", kind),
			Pos:     v.Pos(),
		}
	}

	if def.Label, err = optionalString(v, "label"); err != nil {
		return def, err
	}

	switch def.Kind {
	case ir.FieldRelationship:
		if def.Target, err = optionalString(v, "target"); err != nil {
			return def, err
		}
		if def.Target == "" {
			return def, &CompileError{
				Field:   "target",
				Message: "relationship field requires a target model",
				Pos:     v.Pos(),
			}
		}

	case ir.FieldFormula:
		if def.Formula, err = optionalString(v, "formula"); err != nil {
			return def, err
		}
		if strings.TrimSpace(def.Formula) == "" {
			return def, &CompileError{
				Field:   "formula",
				Message: "formula field requires formula text",
				Pos:     v.Pos(),
			}
		}
		if def.ResultType, err = optionalString(v, "result"); err != nil {
			return def, err
		}
		if def.Delimiter, err = optionalString(v, "delimiter"); err != nil {
			return def, err
		}
		if _, err := formula.ParseDelimiter(def.Delimiter); err != nil {
			return def, &CompileError{
				Field:   "delimiter",
				Message: err.Error(),
				Pos:     v.Pos(),
			}
		}
	}

	return def, nil
}

// SetDefaultDelimiter applies d to every formula field that declares no
// delimiter of its own.
func SetDefaultDelimiter(models []ir.Model, d formula.Delimiter) {
	for _, m := range models {
		for key, def := range m.Fields {
			if def.Kind == ir.FieldFormula && def.Delimiter == "" {
				def.Delimiter = string(d)
				m.Fields[key] = def
			}
		}
	}
}

// selectorName returns the last path selector of v, unquoted.
func selectorName(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	return strings.Trim(labels[len(labels)-1].String(), `"`)
}

// optionalString returns the string at path, or "" when absent.
func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("%s must be a string", path),
			Pos:     val.Pos(),
		}
	}
	return s, nil
}
