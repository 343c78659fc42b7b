package formula

import (
	"github.com/roach88/frontbase/internal/ir"
)

// Node is a parsed expression. Raw returns the node's source text.
type Node interface {
	Pos() int
	Raw() string
}

type span struct {
	pos int
	raw string
}

func (s span) Pos() int    { return s.pos }
func (s span) Raw() string { return s.raw }

// Literal is a number, quoted string, boolean or null constant.
type Literal struct {
	span
	Value ir.Value
}

// PlaceholderRef is a tag placeholder inside a compiled template.
type PlaceholderRef struct {
	span
	ID string
}

// Path is a field reference: one segment for a bare identifier, several for
// a dotted or relationship path.
type Path struct {
	span
	Segments []string
}

// Call is a function call. RawArgs holds each argument's source text.
type Call struct {
	span
	Name    string
	Args    []Node
	RawArgs []string
}

// Binary is an arithmetic operation.
type Binary struct {
	span
	Op    byte
	Left  Node
	Right Node
}

// Unary is a negation.
type Unary struct {
	span
	Op      byte
	Operand Node
}
