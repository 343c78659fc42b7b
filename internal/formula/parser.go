package formula

import (
	"strconv"
	"strings"

	"github.com/roach88/frontbase/internal/ir"
)

// DefaultMaxDepth bounds expression nesting when no limit is configured.
const DefaultMaxDepth = 64

type parser struct {
	src      string
	toks     []token
	i        int
	depth    int
	maxDepth int
}

// Parse parses a tag expression into a Node.
// maxDepth <= 0 selects DefaultMaxDepth.
func Parse(src string, maxDepth int) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	p := &parser{src: src, toks: toks, maxDepth: maxDepth}

	if p.peek().kind == tokEOF {
		return nil, newError(ErrCodeSyntax, 0, "empty expression")
	}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, newError(ErrCodeSyntax, tok.pos, "unexpected %s after expression", tok.kind)
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, newError(ErrCodeSyntax, tok.pos, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

// lastEnd is the end offset of the most recently consumed token.
func (p *parser) lastEnd() int {
	if p.i == 0 {
		return 0
	}
	return p.toks[p.i-1].end
}

func (p *parser) spanFrom(pos int) span {
	return span{pos: pos, raw: strings.TrimSpace(p.src[pos:p.lastEnd()])}
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > p.maxDepth {
		return newError(ErrCodeTooDeeplyNested, pos, "expression nesting exceeds %d levels", p.maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() (Node, error) {
	start := p.peek().pos
	if err := p.enter(start); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokOp && (tok.text == "+" || tok.text == "-"); tok = p.peek() {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: p.spanFrom(start), Op: tok.text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	start := p.peek().pos
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokOp && (tok.text == "*" || tok.text == "/"); tok = p.peek() {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{span: p.spanFrom(start), Op: tok.text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokOp && tok.text == "-" {
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()

		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{span: p.spanFrom(tok.pos), Op: '-', Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, newError(ErrCodeSyntax, tok.pos, "malformed number %q", tok.text)
		}
		return &Literal{span: p.spanFrom(tok.pos), Value: ir.Number(f)}, nil

	case tokString:
		return &Literal{span: p.spanFrom(tok.pos), Value: ir.String(tok.text)}, nil

	case tokPlaceholder:
		return &PlaceholderRef{span: p.spanFrom(tok.pos), ID: tok.text}, nil

	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		switch strings.ToLower(tok.text) {
		case "true":
			return &Literal{span: p.spanFrom(tok.pos), Value: ir.Bool(true)}, nil
		case "false":
			return &Literal{span: p.spanFrom(tok.pos), Value: ir.Bool(false)}, nil
		case "null":
			return &Literal{span: p.spanFrom(tok.pos), Value: ir.Null{}}, nil
		}
		return &Path{span: p.spanFrom(tok.pos), Segments: strings.Split(tok.text, ".")}, nil

	default:
		return nil, newError(ErrCodeSyntax, tok.pos, "unexpected %s", tok.kind)
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	if strings.Contains(name.text, ".") {
		return nil, newError(ErrCodeSyntax, name.pos, "invalid function name %q", name.text)
	}
	if err := p.enter(name.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next() // '('
	call := &Call{Name: name.text}

	if p.peek().kind != tokRParen {
		for {
			argStart := p.peek().pos
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			call.RawArgs = append(call.RawArgs, strings.TrimSpace(p.src[argStart:p.lastEnd()]))

			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	call.span = p.spanFrom(name.pos)
	return call, nil
}
