package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/frontbase/internal/compiler"
	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/schedule"
	"github.com/roach88/frontbase/internal/trigger"
)

// ErrCodeInvalidSchedule is reported for process triggers whose schedule
// does not parse.
const ErrCodeInvalidSchedule = "INVALID_SCHEDULE"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path

	// Now supplies the reference time for next-fire reporting (for testing).
	// If nil, defaults to time.Now.
	Now func() time.Time
}

// CompileReport is everything compile learned about a definitions directory.
type CompileReport struct {
	Models    int                     `json:"models"`
	Processes int                     `json:"processes"`
	Formulas  []FormulaReport         `json:"formulas"`
	Triggers  []TriggerReport         `json:"triggers"`
	Schedules []ScheduleReport        `json:"schedules,omitempty"`
	Cycles    []compiler.CycleWarning `json:"cycles,omitempty"`
	Failures  []FailureReport         `json:"failures,omitempty"`
}

// FormulaReport describes one compiled formula.
type FormulaReport struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Model        string          `json:"model"`
	Field        string          `json:"field"`
	ResultType   string          `json:"result_type,omitempty"`
	InferredType string          `json:"inferred_type,omitempty"`
	Dependencies []ir.Dependency `json:"dependencies"`
}

// TriggerReport lists what fires when one model field changes.
type TriggerReport struct {
	Key     string   `json:"key"`
	Targets []string `json:"targets"`
}

// ScheduleReport lists what fires on one schedule and when it fires next.
type ScheduleReport struct {
	Expr    string    `json:"expr"`
	Next    time.Time `json:"next"`
	Targets []string  `json:"targets"`
}

// FailureReport is one formula or process trigger that was excluded.
type FailureReport struct {
	Label     string `json:"label"`
	Model     string `json:"model,omitempty"`
	Field     string `json:"field,omitempty"`
	ProcessID string `json:"process_id,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return newCompileCommand(&CompileOptions{RootOptions: rootOpts})
}

func newCompileCommand(opts *CompileOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <models-dir>",
		Short: "Compile formulas and report the trigger index",
		Long: `Compile every formula field of the CUE models in a directory.

Reports each formula's dependencies, the trigger index built from them and
from the process definitions, the next fire time of every schedule and any
formula dependency cycles. Exits with status 1 if any formula or process
trigger fails to compile.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON report to a file")

	return cmd
}

func runCompile(opts *CompileOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = formatter.Error(compiler.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(cfg.Logging, opts.Verbose, formatter.GetErrWriter())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	delim, err := formula.ParseDelimiter(cfg.Engine.Delimiter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid delimiter", err)
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid timezone", err)
	}

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
	if len(problems) > 0 {
		return outputValidationErrors(formatter, ValidationResult{
			Models:    len(result.Models),
			Processes: len(result.Processes),
			Errors:    problems,
		})
	}

	compiler.SetDefaultDelimiter(result.Models, delim)
	models := ir.NewModels(result.Models...)

	build, err := trigger.Build(cmd.Context(), models, result.Processes, trigger.Options{
		Env:         formula.Env{Models: models, MaxDepth: cfg.Engine.MaxNestingDepth},
		Concurrency: cfg.Engine.CompileConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "compilation cancelled", err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	report := buildReport(build, len(result.Models), len(result.Processes), now().In(loc))

	if opts.Output != "" {
		if err := writeReport(report, opts.Output); err != nil {
			_ = formatter.Error(compiler.ErrCodeGeneric, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}

	return outputCompileReport(formatter, report, opts.Output)
}

// buildReport flattens a trigger build into its report, sorted for stable
// output.
func buildReport(build *trigger.Result, modelCount, processCount int, now time.Time) *CompileReport {
	report := &CompileReport{
		Models:    modelCount,
		Processes: processCount,
		Formulas:  []FormulaReport{},
		Triggers:  []TriggerReport{},
	}

	formulas := make([]*formula.Formula, 0, len(build.Formulas))
	for _, f := range build.Formulas {
		formulas = append(formulas, f)
	}
	sort.Slice(formulas, func(i, j int) bool {
		if formulas[i].Model != formulas[j].Model {
			return formulas[i].Model < formulas[j].Model
		}
		return formulas[i].Field < formulas[j].Field
	})

	for _, f := range formulas {
		report.Formulas = append(report.Formulas, FormulaReport{
			ID:           f.ID,
			Label:        f.Label,
			Model:        f.Model,
			Field:        f.Field,
			ResultType:   f.ResultType,
			InferredType: f.InferredType,
			Dependencies: f.Dependencies,
		})
	}

	for _, key := range build.Index.Keys() {
		report.Triggers = append(report.Triggers, TriggerReport{
			Key:     key,
			Targets: describeTriggers(build, build.Index.Triggers(key)),
		})
	}

	for _, expr := range build.Index.Schedules() {
		next, err := schedule.Next(expr, now)
		if err != nil {
			// Index schedules are normalized at build time.
			continue
		}
		report.Schedules = append(report.Schedules, ScheduleReport{
			Expr:    expr,
			Next:    next,
			Targets: describeTriggers(build, build.Index.TimeTriggers(expr)),
		})
	}

	report.Cycles = compiler.AnalyzeCycles(formulas)

	for _, f := range build.Failures {
		report.Failures = append(report.Failures, FailureReport{
			Label:     f.Label,
			Model:     f.Model,
			Field:     f.Field,
			ProcessID: f.ProcessID,
			Trigger:   f.Trigger,
			Code:      failureCode(f.Err),
			Message:   f.Err.Error(),
		})
	}

	return report
}

// describeTriggers renders triggers as "formula Model.field (local)" or
// "process id/trigger".
func describeTriggers(build *trigger.Result, triggers []ir.Trigger) []string {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		switch t.Kind {
		case ir.TriggerFormula:
			name := t.FormulaID
			if f, ok := build.Formula(t.FormulaID); ok {
				name = f.Model + "." + f.Field
			}
			scope := "foreign"
			if t.IsLocal {
				scope = "local"
			}
			out = append(out, fmt.Sprintf("formula %s (%s)", name, scope))
		case ir.TriggerProcess:
			out = append(out, fmt.Sprintf("process %s/%s", t.ProcessID, t.TriggerName))
		}
	}
	return out
}

func failureCode(err error) string {
	if code := formula.CodeOf(err); code != "" {
		return string(code)
	}
	if schedule.IsParseError(err) {
		return ErrCodeInvalidSchedule
	}
	return compiler.ErrCodeGeneric
}

// outputCompileReport prints the report and maps failures to exit code 1.
func outputCompileReport(formatter *OutputFormatter, report *CompileReport, outputFile string) error {
	failed := len(report.Failures) > 0
	message := fmt.Sprintf("compilation failed with %d error(s)", len(report.Failures))

	if formatter.Format == "json" {
		if failed {
			if err := formatter.Failure(report.Failures[0].Code, message, report); err != nil {
				return err
			}
			return NewExitError(ExitFailure, message)
		}
		return formatter.Success(report)
	}

	w := formatter.Writer
	if failed {
		fmt.Fprintf(w, "✗ Compiled %d formula(s), %d failed\n\n", len(report.Formulas), len(report.Failures))
	} else {
		fmt.Fprintf(w, "✓ Compiled %d formula(s) across %d model(s), %d process(es)\n\n",
			len(report.Formulas), report.Models, report.Processes)
	}

	if len(report.Formulas) > 0 {
		fmt.Fprintln(w, "Formulas:")
		for _, f := range report.Formulas {
			fmt.Fprintf(w, "  %s.%s", f.Model, f.Field)
			if f.ResultType != "" {
				fmt.Fprintf(w, " (%s)", f.ResultType)
			}
			fmt.Fprintln(w)
			for _, dep := range f.Dependencies {
				scope := "foreign"
				if dep.IsLocal {
					scope = "local"
				}
				fmt.Fprintf(w, "    ← %s.%s (%s)\n", dep.Model, dep.Field, scope)
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Triggers) > 0 {
		fmt.Fprintln(w, "Triggers:")
		for _, t := range report.Triggers {
			for _, target := range t.Targets {
				fmt.Fprintf(w, "  %s → %s\n", t.Key, target)
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Schedules) > 0 {
		fmt.Fprintln(w, "Schedules:")
		for _, s := range report.Schedules {
			for _, target := range s.Targets {
				fmt.Fprintf(w, "  %s → %s (next %s)\n", s.Expr, target, s.Next.Format(time.RFC3339))
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Cycles) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, c := range report.Cycles {
			fmt.Fprintf(w, "  ⚠ %s\n", c.Message)
		}
		fmt.Fprintln(w)
	}

	if failed {
		fmt.Fprintln(w, "Failures:")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Code, f.Message)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote report to %s\n", outputFile)
	}

	if failed {
		return NewExitError(ExitFailure, message)
	}
	return nil
}

// writeReport writes the report to a file as indented JSON.
func writeReport(report *CompileReport, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
