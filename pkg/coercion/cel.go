package coercion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Expression is a parsed CEL expression that passed the determinism check.
type Expression struct {
	source string
	ast    *cel.Ast
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.source }

// AST returns the parsed expression.
func (e *Expression) AST() *cel.Ast { return e.ast }

// MarshalJSON renders the expression as its source text.
func (e *Expression) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.source)
}

func newCELHandler() Handler {
	env, envErr := cel.NewEnv()
	return func(raw any) (any, error) {
		if envErr != nil {
			return nil, errorf(TypeCEL, "environment unavailable: %v", envErr)
		}
		src, ok := raw.(string)
		if !ok {
			return nil, errorf(TypeCEL, "expected an expression string, got %s", describe(raw))
		}
		if strings.TrimSpace(src) == "" {
			return nil, errorf(TypeCEL, "empty expression")
		}
		parsed, iss := env.Parse(src)
		if iss != nil && iss.Err() != nil {
			return nil, errorf(TypeCEL, "parse failed: %v", iss.Err())
		}
		expr := parsed.Expr() //nolint:staticcheck // Deprecated but no alternative for AST traversal yet
		if problems := nondeterministic(expr, nil); len(problems) > 0 {
			return nil, errorf(TypeCEL, "%s", strings.Join(problems, "; "))
		}
		return &Expression{source: src, ast: parsed}, nil
	}
}

// nondeterministic collects constructs whose result can vary between
// evaluations of the same input.
func nondeterministic(e *exprpb.Expr, problems []string) []string {
	if e == nil {
		return problems
	}
	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			problems = append(problems, "floating point literals are forbidden")
		}
	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			problems = append(problems, "now() is forbidden")
		case "keys", "values":
			problems = append(problems, fmt.Sprintf("map iteration (%s) is forbidden", call.Function))
		}
		problems = nondeterministic(call.Target, problems)
		for _, arg := range call.Args {
			problems = nondeterministic(arg, problems)
		}
	case *exprpb.Expr_SelectExpr:
		problems = nondeterministic(k.SelectExpr.Operand, problems)
	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			problems = nondeterministic(el, problems)
		}
	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if entry.GetMapKey() != nil {
				problems = nondeterministic(entry.GetMapKey(), problems)
			}
			problems = nondeterministic(entry.Value, problems)
		}
	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		problems = nondeterministic(comp.IterRange, problems)
		problems = nondeterministic(comp.AccuInit, problems)
		problems = nondeterministic(comp.LoopCondition, problems)
		problems = nondeterministic(comp.LoopStep, problems)
		problems = nondeterministic(comp.Result, problems)
	}
	return problems
}
