package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/frontbase/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Models    int                        `json:"models"`
	Processes int                        `json:"processes"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models-dir>",
		Short: "Validate model and process definitions",
		Long: `Validate CUE model and process definitions without compiling formulas.

Checks definition shape and references between definitions: relationship
targets, result types and data trigger models and fields. Faster than
compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result, loadErrors := compiler.LoadDir(modelsDir, compiler.LoadModeCollectAll)
	if result == nil {
		code, message := parseLoadError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, modelsDir)

	var problems []compiler.ValidationError
	for _, err := range loadErrors {
		problems = append(problems, loadErrorToValidation(err))
	}
	problems = append(problems, compiler.Validate(result.Models, result.Processes)...)

	report := ValidationResult{
		Valid:     len(problems) == 0,
		Models:    len(result.Models),
		Processes: len(result.Processes),
		Errors:    problems,
	}

	if !report.Valid {
		return outputValidationErrors(formatter, report)
	}
	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d model(s), %d process(es))\n",
		report.Models, report.Processes)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, report ValidationResult) error {
	message := fmt.Sprintf("validation failed with %d error(s)", len(report.Errors))

	if formatter.Format == "json" {
		if err := formatter.Failure(report.Errors[0].Code, message, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range report.Errors {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return NewExitError(ExitFailure, message)
}

// loadErrorToValidation folds a definition error into the validation list,
// using the CUE position as the field when one is known.
func loadErrorToValidation(err error) compiler.ValidationError {
	code, message := parseLoadError(err)
	field := "load"
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		field = fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	return compiler.ValidationError{Field: field, Message: message, Code: code}
}

// parseLoadError extracts error code and message from a loader error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}
