package functions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
)

func TestRegistry_LookupCaseInsensitive(t *testing.T) {
	r := Default()

	fn, ok := r.Lookup("and")
	require.True(t, ok)
	assert.Equal(t, "AND", fn.Name)

	_, ok = r.Lookup("SUMIF")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(And, And)
	assert.ErrorContains(t, err, "duplicate function")
}

func TestRegistry_RejectsMissingEvaluate(t *testing.T) {
	_, err := NewRegistry(Function{Name: "BROKEN"})
	assert.Error(t, err)
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"AND", "CONCAT", "IF", "NOT", "OR"}, Default().Names())
}

func TestRegistry_NilLookup(t *testing.T) {
	var r *Registry
	_, ok := r.Lookup("AND")
	assert.False(t, ok)
}

func TestFieldArguments(t *testing.T) {
	got := FieldArguments([]string{"isActive", ` "literal" `, "42", "true", "account__r.name", "NOT(x)", " spaced "})
	assert.Equal(t, []string{"isActive", "account__r.name", "spaced"}, got)
}

func TestAnd(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		args []ir.Value
		want bool
	}{
		{"all true", []ir.Value{ir.Bool(true), ir.Bool(true)}, true},
		{"one false", []ir.Value{ir.Bool(true), ir.Bool(false)}, false},
		{"truthy text is not true", []ir.Value{ir.Bool(true), ir.String("true")}, false},
		{"number is not true", []ir.Value{ir.Number(1)}, false},
		{"null is not true", []ir.Value{ir.Null{}}, false},
		{"no arguments", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := And.Evaluate(ctx, tt.args, ir.Document{}, Context{})
			require.NoError(t, err)
			assert.Equal(t, ir.Bool(tt.want), got)
		})
	}
}

func TestAnd_CompileDependencies(t *testing.T) {
	assert.Equal(t, []string{"isActive", "isVerified"}, And.CompileDependencies([]string{"isActive", "isVerified"}))
	assert.True(t, And.ProducesPreview)
}

func TestOrNot(t *testing.T) {
	ctx := context.Background()

	got, err := Or.Evaluate(ctx, []ir.Value{ir.Bool(false), ir.Bool(true)}, ir.Document{}, Context{})
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), got)

	got, err = Not.Evaluate(ctx, []ir.Value{ir.String("x")}, ir.Document{}, Context{})
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), got)

	_, err = Not.Evaluate(ctx, nil, ir.Document{}, Context{})
	assert.Error(t, err)
}

func TestIf(t *testing.T) {
	ctx := context.Background()

	got, err := If.Evaluate(ctx, []ir.Value{ir.Bool(true), ir.String("yes"), ir.String("no")}, ir.Document{}, Context{})
	require.NoError(t, err)
	assert.Equal(t, ir.String("yes"), got)

	got, err = If.Evaluate(ctx, []ir.Value{ir.Null{}, ir.String("yes"), ir.Number(0)}, ir.Document{}, Context{})
	require.NoError(t, err)
	assert.Equal(t, ir.Number(0), got)
	assert.False(t, If.ProducesPreview)
}

func TestConcat(t *testing.T) {
	got, err := Concat.Evaluate(context.Background(), []ir.Value{ir.String("Order #"), ir.Number(7), ir.Null{}}, ir.Document{}, Context{})
	require.NoError(t, err)
	assert.Equal(t, ir.String("Order #7"), got)
}

func TestCheckArity(t *testing.T) {
	assert.NoError(t, If.CheckArity(3))
	assert.Error(t, If.CheckArity(2))
	assert.Error(t, Not.CheckArity(2))
	assert.NoError(t, And.CheckArity(10))
}
