// Package sexpr provides the immutable S-expression tree used to carry
// structured fragments (queries, filters) inside untrusted plan parameters.
//
// A Node is either a literal leaf (string, number, bool or null) or a
// compound node with a symbol and an ordered list of children. Nodes are
// values: fields are unexported and every accessor returns a copy, so a
// tree handed to another component can never be mutated behind its back.
package sexpr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Node is one vertex of an S-expression tree.
type Node struct {
	compound bool
	symbol   string
	children []Node
	value    any // string | json.Number | bool | nil, literal nodes only
}

// Str returns a string literal.
func Str(s string) Node { return Node{value: s} }

// Int returns an integer literal.
func Int(i int64) Node { return Node{value: json.Number(strconv.FormatInt(i, 10))} }

// Float returns a numeric literal. NaN and infinities are not representable
// and are rendered as null.
func Float(f float64) Node {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Node{value: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Bool returns a boolean literal.
func Bool(b bool) Node { return Node{value: b} }

// Null returns the null literal.
func Null() Node { return Node{} }

// List returns a compound node. The children slice is copied.
func List(symbol string, children ...Node) Node {
	cp := make([]Node, len(children))
	copy(cp, children)
	return Node{compound: true, symbol: symbol, children: cp}
}

// ErrNumberRange is returned for numeric literals beyond the float64 range.
var ErrNumberRange = errors.New("sexpr: number out of range")

func checkRange(num string) error {
	if _, err := strconv.ParseFloat(num, 64); err != nil {
		return fmt.Errorf("%w: %s", ErrNumberRange, num)
	}
	return nil
}

// Literal builds a literal node from a Go scalar.
func Literal(v any) (Node, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return Str(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if !numberPattern.MatchString(t.String()) {
			return Node{}, fmt.Errorf("sexpr: invalid number literal %q", t.String())
		}
		if err := checkRange(t.String()); err != nil {
			return Node{}, err
		}
		return Node{value: t}, nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	default:
		return Node{}, fmt.Errorf("sexpr: unsupported literal type %T", v)
	}
}

// IsLiteral reports whether n is a leaf.
func (n Node) IsLiteral() bool { return !n.compound }

// Symbol returns the symbol of a compound node, or "" for literals.
func (n Node) Symbol() string { return n.symbol }

// Len returns the number of children.
func (n Node) Len() int { return len(n.children) }

// Child returns the i-th child. It panics if i is out of range.
func (n Node) Child(i int) Node { return n.children[i] }

// Children returns a copy of the children.
func (n Node) Children() []Node {
	cp := make([]Node, len(n.children))
	copy(cp, n.children)
	return cp
}

// Value returns the literal value: string, json.Number, bool or nil.
func (n Node) Value() any { return n.value }

// IsNull reports whether n is the null literal.
func (n Node) IsNull() bool { return !n.compound && n.value == nil }

// StringValue returns the literal string value.
func (n Node) StringValue() (string, bool) {
	if n.compound {
		return "", false
	}
	s, ok := n.value.(string)
	return s, ok
}

// NumberValue returns the literal number value.
func (n Node) NumberValue() (json.Number, bool) {
	if n.compound {
		return "", false
	}
	num, ok := n.value.(json.Number)
	return num, ok
}

// IntValue returns the literal as an int64 when it is an integral number.
func (n Node) IntValue() (int64, bool) {
	num, ok := n.NumberValue()
	if !ok {
		return 0, false
	}
	i, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Equal reports structural equality.
func (n Node) Equal(o Node) bool {
	if n.compound != o.compound {
		return false
	}
	if !n.compound {
		return n.value == o.value
	}
	if n.symbol != o.symbol || len(n.children) != len(o.children) {
		return false
	}
	for i := range n.children {
		if !n.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}

// String renders n in textual S-expression form.
func (n Node) String() string {
	return Format(n)
}
