package ir

import "sort"

// FieldKind is the tagged-variant discriminator of a FieldDefinition.
// A field's kind never changes at runtime.
type FieldKind string

const (
	FieldScalar       FieldKind = "scalar"
	FieldRelationship FieldKind = "relationship"
	FieldFormula      FieldKind = "formula"
)

// ValidFieldKinds defines allowed field kinds.
var ValidFieldKinds = map[FieldKind]bool{
	FieldScalar:       true,
	FieldRelationship: true,
	FieldFormula:      true,
}

// FieldDefinition describes one field of a model.
//
// Target is set for relationship fields only; Formula, ResultType and
// Delimiter are set for formula fields only.
type FieldDefinition struct {
	Kind       FieldKind `json:"type"`
	Label      string    `json:"label,omitempty"`
	Target     string    `json:"target,omitempty"`    // related model key
	Formula    string    `json:"formula,omitempty"`   // raw formula text
	ResultType string    `json:"result,omitempty"`    // text, number, boolean, ...
	Delimiter  string    `json:"delimiter,omitempty"` // curly (default) or bracket
}

// Model is a data-model definition. Immutable after load.
type Model struct {
	Key    string                     `json:"key"`
	Label  string                     `json:"label"`
	Fields map[string]FieldDefinition `json:"fields"`
}

// Field looks up a field definition by key.
func (m Model) Field(key string) (FieldDefinition, bool) {
	f, ok := m.Fields[key]
	return f, ok
}

// FieldKeys returns the model's field keys in sorted order.
func (m Model) FieldKeys() []string {
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Models is the full model metadata collection, keyed by model key.
type Models map[string]Model

// NewModels indexes models by key.
func NewModels(models ...Model) Models {
	out := make(Models, len(models))
	for _, m := range models {
		out[m.Key] = m
	}
	return out
}

// Keys returns the model keys in sorted order.
func (ms Models) Keys() []string {
	keys := make([]string, 0, len(ms))
	for k := range ms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tag is a delimited sub-expression extracted from formula text.
// ID is process-unique and never collides with formula content.
type Tag struct {
	Expr string `json:"expr"`
	ID   string `json:"id"`
}

// Dependency is a (model, field) pair a formula's value depends on.
// IsLocal is true iff the field is on the formula's own model and was
// reached without a relationship hop.
type Dependency struct {
	Model   string `json:"model"`
	Field   string `json:"field"`
	IsLocal bool   `json:"is_local"`
}

// Key returns the trigger-index key of the dependency.
func (d Dependency) Key() string {
	return Key(d.Model, d.Field)
}

// Key builds the "{model}:{field}" trigger-index key.
func Key(modelKey, fieldKey string) string {
	return modelKey + ":" + fieldKey
}

// Document is a stored record of a model.
type Document struct {
	ID     string `json:"_id"`
	Model  string `json:"model"`
	Fields Object `json:"fields"`
}

// Get returns the value of a field, or Null if absent.
func (d Document) Get(field string) Value {
	return d.Fields.Get(field)
}

// Operation is the kind of mutation a ChangeEvent reports.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// ChangeEvent is one entry of the store's change feed.
//
// For inserts ChangedFields lists every key present on the document; for
// updates it lists the keys the store's diff reported as modified.
// Document is always the full post-change document.
type ChangeEvent struct {
	Operation     Operation `json:"operation"`
	Model         string    `json:"model"`
	Document      Document  `json:"document"`
	ChangedFields []string  `json:"changed_fields"`
}

// TriggerKind distinguishes formula recomputation from process execution.
type TriggerKind string

const (
	TriggerFormula TriggerKind = "formula"
	TriggerProcess TriggerKind = "process"
)

// Trigger is an entity registered to fire when a (model, field) changes or a
// schedule ticks. It is a comparable value: identical triggers collapse in
// a firing set.
//
// Formula triggers set FormulaID and IsLocal; process triggers set ProcessID
// and TriggerName (the declared trigger that fired).
type Trigger struct {
	Kind        TriggerKind `json:"kind"`
	FormulaID   string      `json:"formula_id,omitempty"`
	IsLocal     bool        `json:"is_local,omitempty"`
	ProcessID   string      `json:"process_id,omitempty"`
	TriggerName string      `json:"trigger_name,omitempty"`
}

// FormulaTrigger builds a formula trigger.
func FormulaTrigger(formulaID string, isLocal bool) Trigger {
	return Trigger{Kind: TriggerFormula, FormulaID: formulaID, IsLocal: isLocal}
}

// ProcessTriggerRef builds a process trigger.
func ProcessTriggerRef(processID, triggerName string) Trigger {
	return Trigger{Kind: TriggerProcess, ProcessID: processID, TriggerName: triggerName}
}

// ProcessTriggerKind distinguishes clock triggers from data-change triggers.
type ProcessTriggerKind string

const (
	ProcessTriggerTime ProcessTriggerKind = "time"
	ProcessTriggerData ProcessTriggerKind = "data"
)

// ProcessTrigger is one declared trigger of a scheduled process.
//
// Time triggers carry a Schedule (cron expression or named preset); data
// triggers carry a Model and the Fields whose change fires the process.
type ProcessTrigger struct {
	Name     string             `json:"name"`
	Kind     ProcessTriggerKind `json:"kind"`
	Schedule string             `json:"schedule,omitempty"`
	Model    string             `json:"model,omitempty"`
	Fields   []string           `json:"fields,omitempty"`
}

// ProcessSpec is a scheduled-process object as stored in the data platform.
type ProcessSpec struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Triggers []ProcessTrigger `json:"triggers"`
	Config   Object           `json:"config,omitempty"`
}

// Trigger looks up a declared trigger by name.
func (p ProcessSpec) Trigger(name string) (ProcessTrigger, bool) {
	for _, t := range p.Triggers {
		if t.Name == name {
			return t, true
		}
	}
	return ProcessTrigger{}, false
}

// SecurityContext is the permission context a process executes under.
type SecurityContext struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}
