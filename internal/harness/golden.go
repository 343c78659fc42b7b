package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/frontbase/internal/ir"
)

// Snapshot renders a scenario result as canonical JSON: the trace and the
// final documents. Identical behavior yields identical bytes.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, event := range result.Trace {
		obj := ir.Object{
			"step": ir.Number(event.Step),
			"type": ir.String(event.Type),
		}
		if event.Type == TraceWrite {
			obj["model"] = ir.String(event.Model)
			obj["document"] = ir.String(event.Document)
			obj["field"] = ir.String(event.Field)
			obj["value"] = valueOrNull(event.Value)
		} else {
			obj["process"] = ir.String(event.Process)
			obj["trigger"] = ir.String(event.Trigger)
			obj["source"] = ir.String(event.Source)
		}
		trace[i] = obj
	}

	docs := make(ir.Array, len(result.Documents))
	for i, doc := range result.Documents {
		docs[i] = ir.Object{
			"id":     ir.String(doc.ID),
			"model":  ir.String(doc.Model),
			"fields": doc.Fields,
		}
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario":  ir.String(scenarioName),
		"trace":     trace,
		"documents": docs,
	})
}

func valueOrNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
