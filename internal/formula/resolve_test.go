package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/functions"
	"github.com/roach88/frontbase/internal/ir"
)

func testResolver() *Resolver {
	return &Resolver{Models: testModels(), Registry: functions.Default()}
}

func local(field string) ir.Dependency {
	return ir.Dependency{Model: "Contact", Field: field, IsLocal: true}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []ir.Dependency
	}{
		{
			name: "operands in source order",
			expr: "a + b",
			want: []ir.Dependency{local("a"), local("b")},
		},
		{
			name: "duplicates across operands are kept",
			expr: "a * (b - a)",
			want: []ir.Dependency{local("a"), local("b"), local("a")},
		},
		{
			name: "relationship chain",
			expr: "account__r.owner__r.name",
			want: []ir.Dependency{
				{Model: "Contact", Field: "account", IsLocal: true},
				{Model: "Account", Field: "owner", IsLocal: false},
				{Model: "Person", Field: "name", IsLocal: false},
			},
		},
		{
			name: "function arguments",
			expr: "AND(isActive, isVerified)",
			want: []ir.Dependency{local("isActive"), local("isVerified")},
		},
		{
			name: "plain dotted path is opaque",
			expr: "address.city",
			want: []ir.Dependency{local("address.city")},
		},
		{
			name: "unmarked middle segment ends the walk",
			expr: "account__r.meta.size",
			want: []ir.Dependency{
				{Model: "Contact", Field: "account", IsLocal: true},
				{Model: "Account", Field: "meta.size", IsLocal: false},
			},
		},
		{
			name: "trailing relationship segment",
			expr: "account__r",
			want: []ir.Dependency{local("account")},
		},
		{
			name: "nested calls and paths",
			expr: "AND(account__r.owner__r.name, NOT(isActive))",
			want: []ir.Dependency{
				{Model: "Contact", Field: "account", IsLocal: true},
				{Model: "Account", Field: "owner", IsLocal: false},
				{Model: "Person", Field: "name", IsLocal: false},
				local("isActive"),
			},
		},
		{
			name: "literals have no dependencies",
			expr: "1 + 'x' + true",
			want: nil,
		},
		{
			name: "unary operand",
			expr: "-amount",
			want: []ir.Dependency{local("amount")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testResolver().Resolve(tt.expr, "Contact")
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_SelfRelationshipIsForeign(t *testing.T) {
	got, err := testResolver().Resolve("parent__r.name", "Person")
	require.NoError(t, err)

	// The hop lands on the origin model again but reads another document.
	assert.Equal(t, []ir.Dependency{
		{Model: "Person", Field: "parent", IsLocal: true},
		{Model: "Person", Field: "name", IsLocal: false},
	}, got)
}

func TestResolve_UnicodeFieldKeys(t *testing.T) {
	got, err := testResolver().Resolve("größe * 2 + straße", "Contact")
	require.NoError(t, err)
	assert.Equal(t, []ir.Dependency{local("größe"), local("straße")}, got)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		code ErrorCode
	}{
		{"unknown function", "FOO(a)", ErrCodeUnknownFunction},
		{"arity", "NOT(a, b)", ErrCodeArgumentCount},
		{"scalar marked as relationship", "isActive__r.name", ErrCodeBrokenRelationshipChain},
		{"missing relationship field", "missing__r.name", ErrCodeBrokenRelationshipChain},
		{"unknown target model", "ghost__r.x__r.y", ErrCodeMissingModelMetadata},
		{"unknown function in argument", "AND(a, NOPE(b))", ErrCodeUnknownFunction},
		{"syntax", "a +", ErrCodeSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testResolver().Resolve(tt.expr, "Contact")
			assert.True(t, IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestResolve_NoMetadata(t *testing.T) {
	r := &Resolver{Registry: functions.Default()}

	_, err := r.Resolve("account__r.name", "Contact")
	assert.True(t, IsCode(err, ErrCodeMissingModelMetadata))

	deps, err := r.Resolve("a + b.c", "Contact")
	require.NoError(t, err)
	assert.Equal(t, []ir.Dependency{local("a"), local("b.c")}, deps)
}

func TestResolve_CompileDependenciesUnion(t *testing.T) {
	reg := functions.MustRegistry(functions.Function{
		Name:    "LOOKUP",
		MinArgs: 1,
		MaxArgs: functions.Unbounded,
		// The second argument names a field by string.
		CompileDependencies: func(raw []string) []string {
			if len(raw) < 2 {
				return nil
			}
			return []string{raw[1][1 : len(raw[1])-1]}
		},
		Evaluate: functions.Not.Evaluate,
	})
	r := &Resolver{Models: testModels(), Registry: reg}

	deps, err := r.Resolve(`LOOKUP(a, "b", a)`, "Contact")
	require.NoError(t, err)
	assert.Equal(t, []ir.Dependency{local("a"), local("b")}, deps)
}
