package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/frontbase/internal/ir"
)

// CompileProcess parses a CUE value into a ProcessSpec.
//
// The CUE value should be the process struct itself, e.g.:
//
//	process: "nightly-report": {
//		label: "Nightly report"
//		triggers: {
//			nightly:  { kind: "time", schedule: "daily" }
//			renamed:  { kind: "data", model: "Contact", fields: ["first", "last"] }
//		}
//		config: { recipients: ["ops@example.com"] }
//	}
//
// Trigger order follows declaration order. Schedules are validated later,
// when the trigger index is built.
func CompileProcess(v cue.Value) (*ir.ProcessSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ProcessSpec{ID: selectorName(v)}

	label, err := optionalString(v, "label")
	if err != nil {
		return nil, err
	}
	spec.Label = label
	if spec.Label == "" {
		spec.Label = spec.ID
	}

	triggersVal := v.LookupPath(cue.ParsePath("triggers"))
	if !triggersVal.Exists() {
		return nil, &CompileError{
			Field:   "triggers",
			Message: "triggers is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := triggersVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		t, err := compileTrigger(strings.Trim(iter.Label(), `"`), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Triggers = append(spec.Triggers, t)
	}
	if len(spec.Triggers) == 0 {
		return nil, &CompileError{
			Field:   "triggers",
			Message: "at least one trigger is required",
			Pos:     triggersVal.Pos(),
		}
	}

	configVal := v.LookupPath(cue.ParsePath("config"))
	if configVal.Exists() {
		data, err := configVal.MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		cfg, err := ir.UnmarshalValue(data)
		if err != nil {
			return nil, &CompileError{Field: "config", Message: err.Error(), Pos: configVal.Pos()}
		}
		obj, ok := cfg.(ir.Object)
		if !ok {
			return nil, &CompileError{
				Field:   "config",
				Message: fmt.Sprintf("config must be a struct, got %s", ir.TypeName(cfg)),
				Pos:     configVal.Pos(),
			}
		}
		spec.Config = obj
	}

	return spec, nil
}

func compileTrigger(name string, v cue.Value) (ir.ProcessTrigger, error) {
	t := ir.ProcessTrigger{Name: name}

	kind, err := optionalString(v, "kind")
	if err != nil {
		return t, err
	}
	t.Kind = ir.ProcessTriggerKind(kind)

	switch t.Kind {
	case ir.ProcessTriggerTime:
		if t.Schedule, err = optionalString(v, "schedule"); err != nil {
			return t, err
		}
		if strings.TrimSpace(t.Schedule) == "" {
			return t, &CompileError{
				Field:   "schedule",
				Message: fmt.Sprintf("time trigger %q requires a schedule", name),
				Pos:     v.Pos(),
			}
		}

	case ir.ProcessTriggerData:
		if t.Model, err = optionalString(v, "model"); err != nil {
			return t, err
		}
		if t.Model == "" {
			return t, &CompileError{
				Field:   "model",
				Message: fmt.Sprintf("data trigger %q requires a model", name),
				Pos:     v.Pos(),
			}
		}
		fieldsVal := v.LookupPath(cue.ParsePath("fields"))
		if fieldsVal.Exists() {
			if err := fieldsVal.Decode(&t.Fields); err != nil {
				return t, &CompileError{
					Field:   "fields",
					Message: "fields must be a list of strings",
					Pos:     fieldsVal.Pos(),
				}
			}
		}
		if len(t.Fields) == 0 {
			return t, &CompileError{
				Field:   "fields",
				Message: fmt.Sprintf("data trigger %q requires at least one field", name),
				Pos:     v.Pos(),
			}
		}

	default:
		return t, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("trigger %q has unknown kind %q (want time or data)", name, kind),
			Pos:     v.Pos(),
		}
	}

	return t, nil
}
