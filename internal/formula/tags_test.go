package formula

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontbase/internal/ir"
)

func TestExtractTags_Curly(t *testing.T) {
	template, tags := ExtractTags("{{a}} and {{  b  }}", DelimiterCurly, &SequenceGenerator{})

	assert.Equal(t, "$___tag1___$ and $___tag2___$", template)
	assert.Equal(t, []ir.Tag{{Expr: "a", ID: "tag1"}, {Expr: "b", ID: "tag2"}}, tags)
}

func TestExtractTags_RepeatedTagsSubstitutePositionally(t *testing.T) {
	template, tags := ExtractTags("{{a}}+{{a}}", DelimiterCurly, &SequenceGenerator{})

	assert.Equal(t, "$___tag1___$+$___tag2___$", template)
	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].Expr)
	assert.Equal(t, "a", tags[1].Expr)
}

func TestExtractTags_BracketIgnoresCurly(t *testing.T) {
	template, tags := ExtractTags("[[x]] {{y}}", DelimiterBracket, &SequenceGenerator{})

	assert.Equal(t, "$___tag1___$ {{y}}", template)
	assert.Equal(t, []ir.Tag{{Expr: "x", ID: "tag1"}}, tags)
}

func TestExtractTags_NonGreedy(t *testing.T) {
	_, tags := ExtractTags("{{a}}}} {{b}}", DelimiterCurly, &SequenceGenerator{})

	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].Expr)
	assert.Equal(t, "b", tags[1].Expr)
}

func TestExtractTags_SkipsMultilineInterior(t *testing.T) {
	template, tags := ExtractTags("{{a\nb}} {{c}}", DelimiterCurly, &SequenceGenerator{})

	assert.Equal(t, "{{a\nb}} $___tag1___$", template)
	assert.Equal(t, []ir.Tag{{Expr: "c", ID: "tag1"}}, tags)
}

func TestExtractTags_LineBreaksAroundExpression(t *testing.T) {
	template, tags := ExtractTags("Owner:\n[[\n  account__r.name\r\n]] done", DelimiterBracket, &SequenceGenerator{})

	assert.Equal(t, "Owner:\n$___tag1___$ done", template)
	assert.Equal(t, []ir.Tag{{Expr: "account__r.name", ID: "tag1"}}, tags)
}

func TestExtractTags_NoTags(t *testing.T) {
	template, tags := ExtractTags("plain text", DelimiterCurly, &SequenceGenerator{})

	assert.Equal(t, "plain text", template)
	assert.Empty(t, tags)
}

func TestExtractTags_CountAndOrder(t *testing.T) {
	for n := 0; n <= 12; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var b strings.Builder
			var want []string
			for i := 0; i < n; i++ {
				expr := fmt.Sprintf("f%d", i%3)
				want = append(want, expr)
				fmt.Fprintf(&b, "x{{ %s }}-", expr)
			}

			template, tags := ExtractTags(b.String(), DelimiterCurly, &SequenceGenerator{})

			require.Len(t, tags, n)
			for i, tag := range tags {
				assert.Equal(t, want[i], tag.Expr)
				assert.Equal(t, fmt.Sprintf("tag%d", i+1), tag.ID)
			}
			assert.NotContains(t, template, "{{")
			assert.NotContains(t, template, "}}")
		})
	}
}

func TestUUIDGenerator(t *testing.T) {
	g := UUIDGenerator{}
	a, b := g.Generate(), g.Generate()

	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}

func TestSequenceGenerator_Prefix(t *testing.T) {
	g := &SequenceGenerator{Prefix: "t"}
	assert.Equal(t, "t1", g.Generate())
	assert.Equal(t, "t2", g.Generate())
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    Delimiter
		wantErr bool
	}{
		{"", DelimiterCurly, false},
		{"curly", DelimiterCurly, false},
		{"Bracket", DelimiterBracket, false},
		{"angle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDelimiter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
