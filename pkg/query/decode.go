package query

import (
	"github.com/Mindburn-Labs/helm-actions/pkg/sexpr"
)

// Decode builds a Query from any accepted representation: a sexpr.Node, a
// *Query, the JSON wire form (as decoded into []any / map[string]any), or
// the textual form. Representation errors are reported as ErrQueryShape;
// a well-formed tree with the wrong root fails as in New.
func Decode(raw any) (*Query, error) {
	var node sexpr.Node
	var err error
	switch v := raw.(type) {
	case nil:
		return nil, shapeErr("query is null")
	case *Query:
		if v == nil {
			return nil, shapeErr("query is null")
		}
		return v, nil
	case string:
		node, err = sexpr.Parse(v)
	default:
		node, err = sexpr.FromValue(v)
	}
	if err != nil {
		return nil, &ValidationError{Code: ErrQueryShape, Message: err.Error()}
	}
	return New(node)
}
