package formula

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/frontbase/internal/ir"
)

// Delimiter selects the tag syntax of a formula.
type Delimiter string

const (
	// DelimiterCurly uses {{ ... }}; the default for model-to-model formulas.
	DelimiterCurly Delimiter = "curly"
	// DelimiterBracket uses [[ ... ]]; used when formulas are embedded in a
	// larger templated document.
	DelimiterBracket Delimiter = "bracket"
)

// ParseDelimiter validates a delimiter name. Empty selects DelimiterCurly.
func ParseDelimiter(s string) (Delimiter, error) {
	switch Delimiter(strings.ToLower(strings.TrimSpace(s))) {
	case "", DelimiterCurly:
		return DelimiterCurly, nil
	case DelimiterBracket:
		return DelimiterBracket, nil
	default:
		return "", fmt.Errorf("invalid delimiter %q: must be curly or bracket", s)
	}
}

func (d Delimiter) pair() (open, close string) {
	if d == DelimiterBracket {
		return "[[", "]]"
	}
	return "{{", "}}"
}

// IDGenerator generates opaque tag identifiers.
// Implemented by UUIDGenerator (production) and SequenceGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates UUIDv7 identifiers without hyphens.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a new 32-character hex identifier.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// SequenceGenerator returns prefix1, prefix2, ... for deterministic tests.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	Prefix string

	mu sync.Mutex
	n  int
}

// Generate returns the next identifier in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	prefix := g.Prefix
	if prefix == "" {
		prefix = "tag"
	}
	return fmt.Sprintf("%s%d", prefix, g.n)
}

const (
	placeholderOpen  = "$___"
	placeholderClose = "___$"
)

// Placeholder returns the template placeholder embedding id.
func Placeholder(id string) string {
	return placeholderOpen + id + placeholderClose
}

// ExtractTags scans raw left to right for non-overlapping delimited
// sub-expressions. Each match is recorded as a Tag (interior trimmed) and the
// first remaining occurrence of the exact matched text in the template is
// replaced by its placeholder, so repeated identical tags are substituted
// positionally.
//
// A candidate whose trimmed interior spans a line break is not a tag;
// line breaks next to the delimiters are trimmed with the other whitespace.
func ExtractTags(raw string, mode Delimiter, ids IDGenerator) (string, []ir.Tag) {
	open, close := mode.pair()
	template := raw
	var tags []ir.Tag

	i := 0
	for i < len(raw) {
		start := strings.Index(raw[i:], open)
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(raw[start+len(open):], close)
		if end < 0 {
			break
		}
		end += start + len(open)

		interior := raw[start+len(open) : end]
		// Line breaks may pad the expression but not split it.
		if strings.ContainsAny(strings.TrimSpace(interior), "\r\n") {
			i = start + 1
			continue
		}

		match := raw[start : end+len(close)]
		id := ids.Generate()
		tags = append(tags, ir.Tag{Expr: strings.TrimSpace(interior), ID: id})
		template = strings.Replace(template, match, Placeholder(id), 1)

		i = end + len(close)
	}

	return template, tags
}
