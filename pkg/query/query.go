// Package query compiles structured, read-only queries expressed as
// S-expression trees into dialect-specific SQL text.
//
// A Query can only be obtained through New, which checks the root shape.
// Compile then walks the tree against a closed, SELECT-only grammar and,
// when a SchemaCatalog is supplied, checks every table and column
// reference against it. There is no node kind for INSERT, UPDATE, DELETE
// or DDL, so a mutating statement cannot be expressed at all.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/helm-actions/pkg/sexpr"
)

// RootSymbol identifies a query root node.
const RootSymbol = "Q"

// Query is a shape-validated query tree. The zero value is not usable.
type Query struct {
	root sexpr.Node
}

// New returns a Query for root. It fails when root is a literal or carries
// a symbol other than "Q".
func New(root sexpr.Node) (*Query, error) {
	if root.IsLiteral() {
		return nil, &ValidationError{
			Code:    ErrQueryNotQuery,
			Message: fmt.Sprintf("cannot build a query from literal node %s; expected compound node with symbol %q", root, RootSymbol),
		}
	}
	if root.Symbol() != RootSymbol {
		return nil, &ValidationError{
			Code:    ErrQueryNotQuery,
			Message: fmt.Sprintf("expected root symbol %q, got %q", RootSymbol, root.Symbol()),
			Ref:     root.Symbol(),
		}
	}
	return &Query{root: root}, nil
}

// MustNew is New for statically known trees. It panics on error.
func MustNew(root sexpr.Node) *Query {
	q, err := New(root)
	if err != nil {
		panic(err)
	}
	return q
}

// Root returns the query tree.
func (q *Query) Root() sexpr.Node { return q.root }

// String returns the textual S-expression.
func (q *Query) String() string { return sexpr.Format(q.root) }

// MarshalJSON encodes the query tree in wire form.
func (q *Query) MarshalJSON() ([]byte, error) { return q.root.MarshalJSON() }

// Dialect selects how a Query is rendered. It never changes the tree.
type Dialect int

const (
	// ANSI is the default dialect.
	ANSI Dialect = iota
	// Postgres renders PostgreSQL-specific operators.
	Postgres
)

// ErrUnknownDialect is returned by ParseDialect.
var ErrUnknownDialect = errors.New("query: unknown dialect")

// ParseDialect maps a user-facing name to a Dialect. Empty means ANSI.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ansi", "sql":
		return ANSI, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return ANSI, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

func (d Dialect) String() string {
	switch d {
	case ANSI:
		return "ansi"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Dialect) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dialect) UnmarshalText(b []byte) error {
	parsed, err := ParseDialect(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Compiled is a query that passed compilation, together with its SQL.
type Compiled struct {
	Query   *Query  `json:"query"`
	Dialect Dialect `json:"dialect"`
	SQL     string  `json:"sql"`
}

// CompileQuery compiles q and returns the bound result.
func CompileQuery(q *Query, d Dialect, schema *SchemaCatalog) (*Compiled, error) {
	sql, err := Compile(q, d, schema)
	if err != nil {
		return nil, err
	}
	return &Compiled{Query: q, Dialect: d, SQL: sql}, nil
}
