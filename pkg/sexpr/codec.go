package sexpr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxDepth bounds the nesting of decoded trees. Input comes from model
// output and is never trusted to be shallow.
const MaxDepth = 64

// ErrTooDeep is returned when a decoded tree exceeds MaxDepth.
var ErrTooDeep = errors.New("sexpr: tree exceeds maximum depth")

// FromValue converts a decoded JSON value into a Node.
//
// The wire form of a compound node is an array whose first element is the
// symbol: ["Q", ["from", "users"]]. The object form
// {"symbol": "Q", "children": [...]} is accepted on input as well. JSON
// scalars are literals. A Node (or *Node) is returned unchanged.
func FromValue(v any) (Node, error) {
	return fromValue(v, 0)
}

func fromValue(v any, depth int) (Node, error) {
	if depth > MaxDepth {
		return Node{}, ErrTooDeep
	}
	switch t := v.(type) {
	case Node:
		return t, nil
	case *Node:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case []any:
		if len(t) == 0 {
			return Node{}, errors.New("sexpr: empty list has no symbol")
		}
		sym, ok := t[0].(string)
		if !ok || sym == "" {
			return Node{}, fmt.Errorf("sexpr: list head must be a non-empty symbol, got %T", t[0])
		}
		return listFrom(sym, t[1:], depth)
	case map[string]any:
		sym, ok := t["symbol"].(string)
		if !ok || sym == "" {
			return Node{}, errors.New(`sexpr: object node requires a non-empty "symbol"`)
		}
		for k := range t {
			if k != "symbol" && k != "children" {
				return Node{}, fmt.Errorf("sexpr: unexpected key %q in object node", k)
			}
		}
		var kids []any
		if raw, present := t["children"]; present && raw != nil {
			kids, ok = raw.([]any)
			if !ok {
				return Node{}, fmt.Errorf(`sexpr: "children" must be an array, got %T`, raw)
			}
		}
		return listFrom(sym, kids, depth)
	default:
		return Literal(v)
	}
}

func listFrom(sym string, raw []any, depth int) (Node, error) {
	children := make([]Node, 0, len(raw))
	for i, c := range raw {
		child, err := fromValue(c, depth+1)
		if err != nil {
			if errors.Is(err, ErrTooDeep) {
				return Node{}, err
			}
			return Node{}, fmt.Errorf("%s[%d]: %w", sym, i, err)
		}
		children = append(children, child)
	}
	return Node{compound: true, symbol: sym, children: children}, nil
}

// ToValue converts n into its JSON wire value.
func ToValue(n Node) any {
	if !n.compound {
		return n.value
	}
	out := make([]any, 0, len(n.children)+1)
	out = append(out, n.symbol)
	for _, c := range n.children {
		out = append(out, ToValue(c))
	}
	return out
}

// MarshalJSON encodes n in wire form.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ToValue(n)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes wire form into n.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("sexpr: %w", err)
	}
	node, err := FromValue(v)
	if err != nil {
		return err
	}
	*n = node
	return nil
}
