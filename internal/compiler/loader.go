package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/frontbase/internal/ir"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the definitions loaded from a directory.
type LoadResult struct {
	Models    []ir.Model
	Processes []ir.ProcessSpec
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Definition errors
	ErrCodeModelFields    = "E101" // Missing or empty fields
	ErrCodeFieldType      = "E102" // Unknown field type
	ErrCodeFieldTarget    = "E103" // Relationship without target
	ErrCodeFieldFormula   = "E104" // Formula field without formula text
	ErrCodeFieldDelimiter = "E105" // Unknown delimiter
	ErrCodeTriggers       = "E110" // Missing or empty triggers
	ErrCodeTriggerKind    = "E111" // Unknown trigger kind
	ErrCodeTriggerTarget  = "E112" // Data trigger without model or fields
	ErrCodeSchedule       = "E113" // Time trigger without schedule
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "fields":
		return ErrCodeModelFields
	case "type":
		return ErrCodeFieldType
	case "target":
		return ErrCodeFieldTarget
	case "formula":
		return ErrCodeFieldFormula
	case "delimiter":
		return ErrCodeFieldDelimiter
	case "triggers":
		return ErrCodeTriggers
	case "kind":
		return ErrCodeTriggerKind
	case "model":
		return ErrCodeTriggerTarget
	case "schedule":
		return ErrCodeSchedule
	default:
		return ErrCodeGeneric
	}
}

// LoadDir loads and compiles the CUE model and process definitions in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
//
// Definitions live under two top-level structs, model and process.
// Results are in CUE declaration order.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("models directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Validate(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	errs := Extract(value, mode, result)

	if len(result.Models) == 0 && len(result.Processes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no models or processes found"})
	}
	return result, errs
}

// Extract compiles the model and process structs of value into result.
func Extract(value cue.Value, mode LoadMode, result *LoadResult) []error {
	var errs []error

	modelErrs := eachField(value, "model", mode, func(label string, v cue.Value) error {
		m, err := CompileModel(v)
		if err != nil {
			return convertCompileError(err, "model."+label)
		}
		result.Models = append(result.Models, *m)
		return nil
	})
	errs = append(errs, modelErrs...)
	if len(errs) > 0 && mode == LoadModeFailFast {
		return errs
	}

	procErrs := eachField(value, "process", mode, func(label string, v cue.Value) error {
		p, err := CompileProcess(v)
		if err != nil {
			return convertCompileError(err, "process."+label)
		}
		result.Processes = append(result.Processes, *p)
		return nil
	})
	return append(errs, procErrs...)
}

func eachField(value cue.Value, path string, mode LoadMode, fn func(string, cue.Value) error) []error {
	v := value.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s: %v", path, err)}}
	}

	var errs []error
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return errs
			}
		}
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
