package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/frontbase/internal/schedule"
)

// Scenario defines a formula behavior scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models is the directory of CUE model and process definitions.
	// A relative path is resolved against the scenario file's directory.
	Models string `yaml:"models"`

	// Steps are applied in order; each runs to quiescence.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final documents and the trace.
	// Supported types: field_equals, write_count, process_ran
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one of Insert, Update and Tick is set.
type Step struct {
	// Insert is the model key of a document to insert with ID and Fields.
	Insert string `yaml:"insert,omitempty"`

	// Update is the id of a document to merge Fields into.
	Update string `yaml:"update,omitempty"`

	// ID is the id of the inserted document.
	ID string `yaml:"id,omitempty"`

	// Fields holds field values. Values are converted to ir.Value.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// Tick fires a schedule (cron expression or preset) once.
	Tick string `yaml:"tick,omitempty"`
}

// Step kinds.
const (
	StepInsert = "insert"
	StepUpdate = "update"
	StepTick   = "tick"
)

// Kind returns the step kind, or "" when zero or several kinds are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Insert != "" {
		kinds = append(kinds, StepInsert)
	}
	if s.Update != "" {
		kinds = append(kinds, StepUpdate)
	}
	if s.Tick != "" {
		kinds = append(kinds, StepTick)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "field_equals": a document field has the expected final value
	// - "write_count": a formula wrote a document field exactly Count times
	// - "process_ran": a process ran exactly Count times
	Type string `yaml:"type"`

	// Document and Field select a document field (field_equals, write_count).
	Document string `yaml:"document,omitempty"`
	Field    string `yaml:"field,omitempty"`

	// Expect is the expected value (field_equals). Omitted means null.
	Expect interface{} `yaml:"expect,omitempty"`

	// Process selects runs of a process (process_ran). Trigger and Source
	// narrow the match when set.
	Process string `yaml:"process,omitempty"`
	Trigger string `yaml:"trigger,omitempty"`
	Source  string `yaml:"source,omitempty"`

	// Count is the expected number of occurrences (write_count, process_ran).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFieldEquals = "field_equals"
	AssertWriteCount  = "write_count"
	AssertProcessRan  = "process_ran"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the models path BEFORE validation
	if scenario.Models != "" && !filepath.IsAbs(scenario.Models) {
		scenario.Models = filepath.Join(filepath.Dir(path), scenario.Models)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Models == "" {
		return fmt.Errorf("models directory is required")
	}
	if info, err := os.Stat(s.Models); err != nil || !info.IsDir() {
		return fmt.Errorf("models directory not found: %s", s.Models)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	switch step.Kind() {
	case StepInsert:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for insert", index)
		}
	case StepUpdate:
		if len(step.Fields) == 0 {
			return fmt.Errorf("steps[%d]: fields are required for update", index)
		}
	case StepTick:
		if _, err := schedule.Normalize(step.Tick); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("steps[%d]: exactly one of insert, update or tick is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFieldEquals, AssertWriteCount:
		if a.Document == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: document and field are required for %s", index, a.Type)
		}
	case AssertProcessRan:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for process_ran", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
