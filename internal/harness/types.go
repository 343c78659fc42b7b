package harness

import (
	"sort"

	"github.com/roach88/frontbase/internal/ir"
)

// Trace event types.
const (
	TraceWrite = "write" // formula write-back that changed a stored value
	TraceRun   = "run"   // process execution
)

// TraceEvent is one observable effect of a scenario step.
type TraceEvent struct {
	Step     int      `json:"step"`
	Type     string   `json:"type"`
	Model    string   `json:"model,omitempty"`
	Document string   `json:"document,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    ir.Value `json:"value,omitempty"`
	Process  string   `json:"process,omitempty"`
	Trigger  string   `json:"trigger,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// sortKey orders events of one step: writes before runs, then by target.
func (e TraceEvent) sortKey() string {
	if e.Type == TraceWrite {
		return "0\x00" + e.Model + "\x00" + e.Document + "\x00" + e.Field + "\x00" + ir.Render(e.Value)
	}
	return "1\x00" + e.Process + "\x00" + e.Trigger + "\x00" + e.Source
}

func sortEvents(events []TraceEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].sortKey() < events[j].sortKey()
	})
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the writes and process runs of every step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Documents is the final state of every document, ordered by model
	// and id.
	Documents []ir.Document `json:"documents"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Documents: []ir.Document{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Document returns the final state of a document by id.
func (r *Result) Document(id string) (ir.Document, bool) {
	for _, d := range r.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return ir.Document{}, false
}
