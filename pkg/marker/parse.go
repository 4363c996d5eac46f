package marker

import (
	"fmt"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// legacyNames maps pre-PEP 508 variable spellings to their current names.
var legacyNames = map[string]string{
	"os.name":                        "os_name",
	"sys.platform":                   "sys_platform",
	"platform.version":               "platform_version",
	"platform.machine":               "platform_machine",
	"platform.python_implementation": "platform_python_implementation",
	"python_implementation":          "platform_python_implementation",
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokString
	tokIdent
	tokOp
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse parses a PEP 508 marker expression such as
// `python_version >= "3.8" and sys_platform == "linux"`.
func Parse(s string) (Expr, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{src: s, toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return parseError(p.src, t.pos, format, args...)
}

func parseError(src string, pos int, format string, args ...any) error {
	return errors.New(errors.ErrCodeParse, "invalid marker %q at offset %d: %s", src, pos, fmt.Sprintf(format, args...))
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAtom() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, p.errorf(t, "expected ')'")
		}
		return inner, nil
	}

	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, p.errorf(opTok, "expected comparison operator")
	}
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Compare{Op: Op(opTok.text), Left: left, Right: right}, nil
}

func (p *parser) parseValue() (Value, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Literal{Value: t.text}, nil
	case tokIdent:
		name := t.text
		if alias, ok := legacyNames[name]; ok {
			name = alias
		}
		return Variable{Name: name}, nil
	default:
		return nil, p.errorf(t, "expected variable or quoted string")
	}
}

func lex(s string) ([]token, error) {
	var toks []token
	fail := func(pos int, format string, args ...any) error {
		return parseError(s, pos, format, args...)
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fail(i, "unterminated string")
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end], i})
			i += end + 2
		case strings.IndexByte("=!<>~", c) >= 0:
			j := i
			for j < len(s) && strings.IndexByte("=!<>~", s[j]) >= 0 {
				j++
			}
			op := s[i:j]
			switch Op(op) {
			case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpCompatible, OpArbitrary:
			default:
				return nil, fail(i, "invalid operator %q", op)
			}
			toks = append(toks, token{tokOp, op, i})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			switch word {
			case "and":
				toks = append(toks, token{tokAnd, word, i})
			case "or":
				toks = append(toks, token{tokOr, word, i})
			case "in":
				toks = append(toks, token{tokOp, string(OpIn), i})
			case "not":
				rest := strings.TrimLeft(s[j:], " \t")
				if !strings.HasPrefix(rest, "in") || (len(rest) > 2 && isIdentPart(rest[2])) {
					return nil, fail(i, "expected 'in' after 'not'")
				}
				toks = append(toks, token{tokOp, string(OpNotIn), i})
				j = len(s) - len(rest) + 2
			default:
				toks = append(toks, token{tokIdent, word, i})
			}
			i = j
		default:
			return nil, fail(i, "unexpected character %q", c)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '.' || (c >= '0' && c <= '9')
}
