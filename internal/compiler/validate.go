package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/frontbase/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Model errors (E120-E129)
	ErrUnknownTarget     = "E120" // relationship target model not defined
	ErrUnknownResultType = "E121" // formula result type not recognised
	ErrEmptyModelKey     = "E122" // model has no key

	// Process errors (E130-E139)
	ErrUnknownTriggerModel = "E130" // data trigger model not defined
	ErrUnknownTriggerField = "E131" // data trigger field not defined on its model
	ErrDuplicateProcess    = "E132" // process id declared twice
)

// ResultTypes are the result types formula values are coerced to.
var ResultTypes = map[string]bool{
	"text":    true,
	"number":  true,
	"boolean": true,
}

// ValidationError represents a cross-definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks references between models and processes that a single
// CompileModel or CompileProcess call cannot see.
// Returns all errors found (does not fail-fast), in definition order.
func Validate(models []ir.Model, processes []ir.ProcessSpec) []ValidationError {
	var errs []ValidationError
	index := ir.NewModels(models...)

	for _, m := range models {
		if strings.TrimSpace(m.Key) == "" {
			errs = append(errs, ValidationError{
				Field:   "model",
				Message: "model key is required",
				Code:    ErrEmptyModelKey,
			})
		}
		for _, key := range m.FieldKeys() {
			def := m.Fields[key]
			path := fmt.Sprintf("model.%s.fields.%s", m.Key, key)

			switch def.Kind {
			case ir.FieldRelationship:
				if _, ok := index[def.Target]; !ok {
					errs = append(errs, ValidationError{
						Field:   path + ".target",
						Message: fmt.Sprintf("relationship targets undefined model %q", def.Target),
						Code:    ErrUnknownTarget,
					})
				}
			case ir.FieldFormula:
				if def.ResultType != "" && !ResultTypes[def.ResultType] {
					errs = append(errs, ValidationError{
						Field:   path + ".result",
						Message: fmt.Sprintf("unknown result type %q, must be \"text\", \"number\" or \"boolean\"", def.ResultType),
						Code:    ErrUnknownResultType,
					})
				}
			}
		}
	}

	seen := make(map[string]bool)
	for _, p := range processes {
		if seen[p.ID] {
			errs = append(errs, ValidationError{
				Field:   "process." + p.ID,
				Message: fmt.Sprintf("duplicate process id %q", p.ID),
				Code:    ErrDuplicateProcess,
			})
		}
		seen[p.ID] = true

		for _, t := range p.Triggers {
			if t.Kind != ir.ProcessTriggerData {
				continue
			}
			path := fmt.Sprintf("process.%s.triggers.%s", p.ID, t.Name)
			m, ok := index[t.Model]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   path + ".model",
					Message: fmt.Sprintf("data trigger watches undefined model %q", t.Model),
					Code:    ErrUnknownTriggerModel,
				})
				continue
			}
			for _, f := range t.Fields {
				if _, ok := m.Field(f); !ok {
					errs = append(errs, ValidationError{
						Field:   path + ".fields",
						Message: fmt.Sprintf("model %q has no field %q", t.Model, f),
						Code:    ErrUnknownTriggerField,
					})
				}
			}
		}
	}

	return errs
}
