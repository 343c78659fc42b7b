package formula

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPlaceholder
	tokOp
	tokLParen
	tokRParen
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokPlaceholder:
		return "placeholder"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return "unknown"
	}
}

// token is one lexical unit. text holds the unescaped value for strings and
// the placeholder id for placeholders; pos/end are byte offsets in the source.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

// tokenize splits src into tokens, always ending with a tokEOF token.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i, end: i + 1})
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i, end: i + 1})
			i++

		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i, end: i + 1})
			i++

		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i, end: i + 1})
			i++

		case c == '"' || c == '\'':
			tok, err := scanString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = tok.end

		case c == '$':
			tok, err := scanPlaceholder(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = tok.end

		case isDigit(c):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			if j < len(src) && src[j] == '.' {
				j++
				if j >= len(src) || !isDigit(src[j]) {
					return nil, newError(ErrCodeSyntax, j, "malformed number")
				}
				for j < len(src) && isDigit(src[j]) {
					j++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: i, end: j})
			i = j

		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			text := src[i:j]
			if pos, ok := validIdent(text); !ok {
				return nil, newError(ErrCodeSyntax, i+pos, "invalid character in identifier %q", text)
			}
			if strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
				return nil, newError(ErrCodeSyntax, i, "empty path segment in %q", text)
			}
			toks = append(toks, token{kind: tokIdent, text: text, pos: i, end: j})
			i = j

		default:
			return nil, newError(ErrCodeSyntax, i, "unexpected character %q", c)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src), end: len(src)})
	return toks, nil
}

func scanString(src string, start int) (token, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			b.WriteByte(src[i+1])
			i += 2
		case c == quote:
			return token{kind: tokString, text: b.String(), pos: start, end: i + 1}, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, newError(ErrCodeSyntax, start, "unterminated string")
}

func scanPlaceholder(src string, start int) (token, error) {
	if !strings.HasPrefix(src[start:], placeholderOpen) {
		return token{}, newError(ErrCodeSyntax, start, "unexpected character '$'")
	}
	body := start + len(placeholderOpen)
	end := strings.Index(src[body:], placeholderClose)
	if end <= 0 {
		return token{}, newError(ErrCodeSyntax, start, "unterminated placeholder")
	}
	id := src[body : body+end]
	return token{kind: tokPlaceholder, text: id, pos: start, end: body + end + len(placeholderClose)}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isIdentStart accepts any non-ASCII byte; validIdent checks the decoded
// runes afterwards.
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

// validIdent reports whether every non-ASCII rune of text is a letter or
// digit, and otherwise the byte offset of the first one that is not.
func validIdent(text string) (int, bool) {
	for pos, r := range text {
		if r < utf8.RuneSelf {
			continue
		}
		if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return pos, false
		}
	}
	return 0, true
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
