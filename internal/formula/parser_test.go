package formula

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
)

func TestParse_Precedence(t *testing.T) {
	node, err := Parse("a + b * c", 0)
	require.NoError(t, err)

	add, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, byte('+'), add.Op)
	assert.Equal(t, "a", add.Left.Raw())

	mul, ok := add.Right.(*Binary)
	require.True(t, ok)
	assert.Equal(t, byte('*'), mul.Op)
	assert.Equal(t, "b * c", mul.Raw())
}

func TestParse_ParenthesesGroup(t *testing.T) {
	node, err := Parse("(a + b) * c", 0)
	require.NoError(t, err)

	mul, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, byte('*'), mul.Op)
	_, ok = mul.Left.(*Binary)
	assert.True(t, ok)
}

func TestParse_CallRawArgs(t *testing.T) {
	node, err := Parse("AND(isActive, 'x', 1, NOT( b ))", 0)
	require.NoError(t, err)

	call, ok := node.(*Call)
	require.True(t, ok)
	assert.Equal(t, "AND", call.Name)
	assert.Equal(t, []string{"isActive", "'x'", "1", "NOT( b )"}, call.RawArgs)
	require.Len(t, call.Args, 4)
	assert.Equal(t, ir.String("x"), call.Args[1].(*Literal).Value)
	assert.Equal(t, ir.Number(1), call.Args[2].(*Literal).Value)
}

func TestParse_EmptyCall(t *testing.T) {
	node, err := Parse("AND()", 0)
	require.NoError(t, err)
	assert.Empty(t, node.(*Call).Args)
}

func TestParse_Literals(t *testing.T) {
	tests := map[string]ir.Value{
		"true":        ir.Bool(true),
		"FALSE":       ir.Bool(false),
		"null":        ir.Null{},
		"12.5":        ir.Number(12.5),
		`"say \"hi\""`: ir.String(`say "hi"`),
	}
	for src, want := range tests {
		t.Run(src, func(t *testing.T) {
			node, err := Parse(src, 0)
			require.NoError(t, err)
			lit, ok := node.(*Literal)
			require.True(t, ok)
			assert.Equal(t, want, lit.Value)
		})
	}
}

func TestParse_Path(t *testing.T) {
	node, err := Parse("account__r.owner__r.name", 0)
	require.NoError(t, err)

	path, ok := node.(*Path)
	require.True(t, ok)
	assert.Equal(t, []string{"account__r", "owner__r", "name"}, path.Segments)
}

func TestParse_UnicodeIdentifier(t *testing.T) {
	node, err := Parse("größe", 0)
	require.NoError(t, err)

	path, ok := node.(*Path)
	require.True(t, ok)
	assert.Equal(t, []string{"größe"}, path.Segments)
}

func TestParse_Placeholder(t *testing.T) {
	node, err := Parse("$___tag1___$ - 1", 0)
	require.NoError(t, err)

	sub := node.(*Binary)
	ref, ok := sub.Left.(*PlaceholderRef)
	require.True(t, ok)
	assert.Equal(t, "tag1", ref.ID)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		src string
		pos int
	}{
		{"", 0},
		{"a +", 3},
		{"a b", 2},
		{"(a", 2},
		{"a..b", 0},
		{"a.", 0},
		{"foo.bar(1)", 0},
		{"a + $", 4},
		{"'open", 0},
		{"a # b", 2},
		{"1.", 2},
		{"a + b‰", 5},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Parse(tt.src, 0)
			require.Error(t, err)

			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, ErrCodeSyntax, fe.Code)
			assert.Equal(t, tt.pos, fe.Pos)
		})
	}
}

func TestParse_TooDeeplyNested(t *testing.T) {
	src := strings.Repeat("(", 70) + "a" + strings.Repeat(")", 70)

	_, err := Parse(src, 64)
	assert.True(t, IsCode(err, ErrCodeTooDeeplyNested))

	_, err = Parse(src, 100)
	assert.NoError(t, err)
}

func TestParse_DeeplyNestedCalls(t *testing.T) {
	src := strings.Repeat("NOT(", 40) + "a" + strings.Repeat(")", 40)

	_, err := Parse(src, 64)
	assert.True(t, IsCode(err, ErrCodeTooDeeplyNested))
}
