package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
)

func compileProcessSource(t *testing.T, src, id string) (*ir.ProcessSpec, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileProcess(v.LookupPath(cue.ParsePath("process." + id)))
}

func TestCompileProcessBasic(t *testing.T) {
	spec, err := compileProcessSource(t, `
		process: "nightly-digest": {
			label: "Nightly digest"
			triggers: {
				nightly: { kind: "time", schedule: "daily" }
				renamed: { kind: "data", model: "Contact", fields: ["first", "last"] }
			}
			config: {
				recipients: ["ops@example.com"]
				limit: 10
			}
		}
	`, `"nightly-digest"`)
	require.NoError(t, err)

	assert.Equal(t, "nightly-digest", spec.ID)
	assert.Equal(t, "Nightly digest", spec.Label)
	assert.Equal(t, []ir.ProcessTrigger{
		{Name: "nightly", Kind: ir.ProcessTriggerTime, Schedule: "daily"},
		{Name: "renamed", Kind: ir.ProcessTriggerData, Model: "Contact", Fields: []string{"first", "last"}},
	}, spec.Triggers)
	assert.True(t, ir.Equal(ir.Object{
		"recipients": ir.Array{ir.String("ops@example.com")},
		"limit":      ir.Number(10),
	}, spec.Config))
}

func TestCompileProcessLabelDefaultsToID(t *testing.T) {
	spec, err := compileProcessSource(t, `
		process: p1: { triggers: { t: { kind: "time", schedule: "@hourly" } } }
	`, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", spec.Label)
	assert.Nil(t, spec.Config)
}

func TestCompileProcessErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing triggers",
			src:   `process: p: { label: "P" }`,
			field: "triggers",
		},
		{
			name:  "empty triggers",
			src:   `process: p: { triggers: {} }`,
			field: "triggers",
		},
		{
			name:  "unknown kind",
			src:   `process: p: { triggers: { t: { kind: "webhook" } } }`,
			field: "kind",
		},
		{
			name:  "time without schedule",
			src:   `process: p: { triggers: { t: { kind: "time" } } }`,
			field: "schedule",
		},
		{
			name:  "data without model",
			src:   `process: p: { triggers: { t: { kind: "data", fields: ["a"] } } }`,
			field: "model",
		},
		{
			name:  "data without fields",
			src:   `process: p: { triggers: { t: { kind: "data", model: "M" } } }`,
			field: "fields",
		},
		{
			name:  "fields not strings",
			src:   `process: p: { triggers: { t: { kind: "data", model: "M", fields: [1] } } }`,
			field: "fields",
		},
		{
			name:  "config not a struct",
			src:   `process: p: { triggers: { t: { kind: "time", schedule: "daily" } }, config: [1] }`,
			field: "config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileProcessSource(t, tt.src, "p")
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
