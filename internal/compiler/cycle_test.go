package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
)

func testFormula(model, field string, deps ...ir.Dependency) *formula.Formula {
	return &formula.Formula{Model: model, Field: field, Dependencies: deps}
}

func local(model, field string) ir.Dependency {
	return ir.Dependency{Model: model, Field: field, IsLocal: true}
}

func foreign(model, field string) ir.Dependency {
	return ir.Dependency{Model: model, Field: field}
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	formulas := []*formula.Formula{
		testFormula("Contact", "fullName", local("Contact", "first"), local("Contact", "last")),
		testFormula("Contact", "greeting", local("Contact", "fullName")),
		testFormula("Account", "ownerName", local("Account", "owner"), foreign("Person", "name")),
	}

	assert.Empty(t, AnalyzeCycles(formulas), "DAG should produce no cycle warnings")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	formulas := []*formula.Formula{
		testFormula("Contact", "counter", local("Contact", "counter")),
	}

	warnings := AnalyzeCycles(formulas)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"Contact.counter", "Contact.counter"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "reads its own field")
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	formulas := []*formula.Formula{
		testFormula("Contact", "a", local("Contact", "b")),
		testFormula("Contact", "b", local("Contact", "a")),
	}

	warnings := AnalyzeCycles(formulas)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"Contact.a", "Contact.b", "Contact.a"}, warnings[0].Path)
	assert.Equal(t, "Formula dependency cycle: Contact.a → Contact.b → Contact.a", warnings[0].Message)
}

// A cycle through relationships spans models.
func TestAnalyzeCycles_AcrossModels(t *testing.T) {
	formulas := []*formula.Formula{
		testFormula("Account", "total", local("Account", "primary"), foreign("Contact", "score")),
		testFormula("Contact", "score", local("Contact", "account"), foreign("Account", "total")),
		testFormula("Contact", "fullName", local("Contact", "first")),
	}

	warnings := AnalyzeCycles(formulas)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"Account.total", "Contact.score", "Account.total"}, warnings[0].Path)
}

func TestAnalyzeCycles_MultipleCyclesSorted(t *testing.T) {
	formulas := []*formula.Formula{
		testFormula("Z", "x", local("Z", "x")),
		testFormula("A", "x", local("A", "y")),
		testFormula("A", "y", local("A", "x")),
	}

	warnings := AnalyzeCycles(formulas)
	require.Len(t, warnings, 2)
	assert.Equal(t, "A.x", warnings[0].Path[0])
	assert.Equal(t, "Z.x", warnings[1].Path[0])
}
