package sexpr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Parse reads a single tree in textual form, e.g.
//
//	(Q (select (col name)) (from users) (where (= (col id) 7)))
//
// Bare atoms are string literals unless they are numbers, true, false or
// null. Double-quoted atoms use Go string escapes.
func Parse(src string) (Node, error) {
	p := &parser{src: src}
	p.skipSpace()
	n, err := p.node(0)
	if err != nil {
		return Node{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Node{}, p.errorf("unexpected trailing input")
	}
	return n, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("sexpr: offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case isSpace(c):
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) node(depth int) (Node, error) {
	if depth > MaxDepth {
		return Node{}, ErrTooDeep
	}
	if p.pos >= len(p.src) {
		return Node{}, p.errorf("unexpected end of input")
	}
	switch p.src[p.pos] {
	case '(':
		return p.list(depth)
	case ')':
		return Node{}, p.errorf("unexpected ')'")
	default:
		tok, quoted, err := p.atom()
		if err != nil {
			return Node{}, err
		}
		n := atomNode(tok, quoted)
		if num, ok := n.NumberValue(); ok {
			if err := checkRange(num.String()); err != nil {
				return Node{}, fmt.Errorf("%w (offset %d)", err, p.pos)
			}
		}
		return n, nil
	}
}

func (p *parser) list(depth int) (Node, error) {
	p.pos++ // (
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		return Node{}, p.errorf("empty list has no symbol")
	}
	if p.pos < len(p.src) && p.src[p.pos] == '(' {
		return Node{}, p.errorf("list head must be a symbol")
	}
	sym, _, err := p.atom()
	if err != nil {
		return Node{}, err
	}
	if sym == "" {
		return Node{}, p.errorf("empty symbol")
	}
	var children []Node
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Node{}, p.errorf("unterminated list %q", sym)
		}
		if p.src[p.pos] == ')' {
			p.pos++
			return Node{compound: true, symbol: sym, children: children}, nil
		}
		child, err := p.node(depth + 1)
		if err != nil {
			return Node{}, err
		}
		children = append(children, child)
	}
}

func (p *parser) atom() (string, bool, error) {
	if p.pos >= len(p.src) {
		return "", false, p.errorf("unexpected end of input")
	}
	if p.src[p.pos] == '"' {
		start := p.pos
		p.pos++
		for p.pos < len(p.src) {
			switch p.src[p.pos] {
			case '\\':
				p.pos += 2
				continue
			case '"':
				p.pos++
				s, err := strconv.Unquote(p.src[start:p.pos])
				if err != nil {
					return "", false, p.errorf("bad string literal: %v", err)
				}
				return s, true, nil
			}
			p.pos++
		}
		return "", false, p.errorf("unterminated string")
	}
	start := p.pos
	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], false, nil
}

func isDelimiter(c byte) bool {
	return c == '(' || c == ')' || c == '"' || c == ';' || isSpace(c)
}

// isSpace reports ASCII whitespace only. Bytes of multi-byte runes are
// always part of an atom.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func atomNode(tok string, quoted bool) Node {
	if quoted {
		return Str(tok)
	}
	switch tok {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "null":
		return Null()
	}
	if numberPattern.MatchString(tok) {
		return Node{value: json.Number(tok)}
	}
	return Str(tok)
}

// Format renders n in textual form. Parse(Format(n)) is structurally equal
// to n.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)
	return b.String()
}

func format(b *strings.Builder, n Node) {
	if n.compound {
		b.WriteByte('(')
		b.WriteString(formatAtom(n.symbol))
		for _, c := range n.children {
			b.WriteByte(' ')
			format(b, c)
		}
		b.WriteByte(')')
		return
	}
	switch v := n.value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case json.Number:
		b.WriteString(v.String())
	case string:
		b.WriteString(formatAtom(v))
	}
}

func formatAtom(s string) string {
	if s == "" || s == "true" || s == "false" || s == "null" || numberPattern.MatchString(s) {
		return strconv.Quote(s)
	}
	for i := 0; i < len(s); i++ {
		if isDelimiter(s[i]) || s[i] == '\\' || s[i] < 0x20 || s[i] >= 0x7f {
			return strconv.Quote(s)
		}
	}
	return s
}
