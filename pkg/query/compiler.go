package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/helm-actions/pkg/sexpr"
)

// Clause symbols accepted directly under the "Q" root.
const (
	clauseSelect   = "select"
	clauseFrom     = "from"
	clauseJoin     = "join"
	clauseLeftJoin = "left-join"
	clauseWhere    = "where"
	clauseGroupBy  = "group-by"
	clauseHaving   = "having"
	clauseOrderBy  = "order-by"
	clauseLimit    = "limit"
	clauseOffset   = "offset"
)

var (
	simpleIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	jsonNumber  = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
)

var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "between": true, "both": true,
	"by": true, "case": true, "cast": true, "check": true, "collate": true,
	"column": true, "constraint": true, "create": true, "cross": true,
	"current_date": true, "current_time": true, "current_timestamp": true,
	"current_user": true, "default": true, "desc": true, "distinct": true,
	"do": true, "else": true, "end": true, "except": true, "false": true,
	"fetch": true, "for": true, "foreign": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "ilike": true, "in": true,
	"inner": true, "intersect": true, "into": true, "is": true, "join": true,
	"leading": true, "left": true, "like": true, "limit": true, "natural": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true,
	"or": true, "order": true, "outer": true, "primary": true,
	"references": true, "right": true, "select": true, "session_user": true,
	"some": true, "table": true, "then": true, "to": true, "trailing": true,
	"true": true, "union": true, "unique": true, "user": true, "using": true,
	"when": true, "where": true, "with": true,
}

// Compile renders q as SQL text for dialect d.
//
// When schema is non-nil every table and column reference must exist in
// it. With a nil schema only the shape of the tree is checked. Compile is
// deterministic: the same (q, d, schema) always yields the same text.
func Compile(q *Query, d Dialect, schema *SchemaCatalog) (string, error) {
	if q == nil {
		return "", shapeErr("nil query")
	}
	if d != ANSI && d != Postgres {
		return "", &ValidationError{Code: ErrQueryDialectCapability, Message: "unsupported dialect", Ref: d.String()}
	}
	c := &compiler{
		dialect: d,
		schema:  schema,
		scope:   make(map[string]string),
		aliases: make(map[string]bool),
	}
	return c.compile(q.root)
}

type compiler struct {
	dialect Dialect
	schema  *SchemaCatalog

	// scope maps a folded table name or alias to the folded table name.
	scope map[string]string
	// order keeps scope keys in FROM/JOIN order for unqualified lookups.
	order []string
	// visible limits lookups to the first visible entries of order while a
	// JOIN condition is rendered. Zero means the whole scope.
	visible int
	// aliases holds folded select-list aliases.
	aliases map[string]bool
}

type clauses struct {
	sel     *sexpr.Node
	from    *sexpr.Node
	joins   []sexpr.Node
	where   *sexpr.Node
	groupBy *sexpr.Node
	having  *sexpr.Node
	orderBy *sexpr.Node
	limit   *sexpr.Node
	offset  *sexpr.Node
}

func (c *compiler) compile(root sexpr.Node) (string, error) {
	cl, err := collectClauses(root)
	if err != nil {
		return "", err
	}

	// Tables are bound before any expression is rendered so that column
	// references in SELECT, WHERE and later clauses see the full FROM/JOIN
	// scope. A JOIN condition sees only the tables joined up to it.
	if err := c.bindTable(*cl.from, false); err != nil {
		return "", err
	}
	for _, j := range cl.joins {
		if err := c.bindTable(j, true); err != nil {
			return "", err
		}
	}

	var parts []string

	sel, err := c.selectList(*cl.sel)
	if err != nil {
		return "", err
	}
	parts = append(parts, sel)

	from, err := c.tableRef(*cl.from, false)
	if err != nil {
		return "", err
	}
	parts = append(parts, "FROM "+from)

	for i, j := range cl.joins {
		c.visible = i + 2
		js, err := c.join(j)
		if err != nil {
			return "", err
		}
		parts = append(parts, js)
	}
	c.visible = 0

	if cl.where != nil {
		s, err := c.singleExpr(*cl.where)
		if err != nil {
			return "", err
		}
		parts = append(parts, "WHERE "+s)
	}
	if cl.groupBy != nil {
		s, err := c.exprList(*cl.groupBy, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, "GROUP BY "+s)
	}
	if cl.having != nil {
		s, err := c.singleExprAliased(*cl.having)
		if err != nil {
			return "", err
		}
		parts = append(parts, "HAVING "+s)
	}
	if cl.orderBy != nil {
		s, err := c.orderTerms(*cl.orderBy)
		if err != nil {
			return "", err
		}
		parts = append(parts, "ORDER BY "+s)
	}
	if cl.limit != nil {
		n, err := countArg(*cl.limit)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("LIMIT %d", n))
	}
	if cl.offset != nil {
		n, err := countArg(*cl.offset)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("OFFSET %d", n))
	}

	return strings.Join(parts, " "), nil
}

func collectClauses(root sexpr.Node) (*clauses, error) {
	cl := &clauses{}
	single := func(slot **sexpr.Node, n sexpr.Node) error {
		if *slot != nil {
			return shapeErr("duplicate %q clause", n.Symbol())
		}
		node := n
		*slot = &node
		return nil
	}
	for i, n := range root.Children() {
		if n.IsLiteral() {
			return nil, shapeErr("clause %d is a literal %s; expected a clause node", i, n)
		}
		var err error
		switch n.Symbol() {
		case clauseSelect:
			err = single(&cl.sel, n)
		case clauseFrom:
			err = single(&cl.from, n)
		case clauseJoin, clauseLeftJoin:
			cl.joins = append(cl.joins, n)
		case clauseWhere:
			err = single(&cl.where, n)
		case clauseGroupBy:
			err = single(&cl.groupBy, n)
		case clauseHaving:
			err = single(&cl.having, n)
		case clauseOrderBy:
			err = single(&cl.orderBy, n)
		case clauseLimit:
			err = single(&cl.limit, n)
		case clauseOffset:
			err = single(&cl.offset, n)
		default:
			return nil, &ValidationError{
				Code:    ErrQueryShape,
				Message: fmt.Sprintf("unrecognized clause %q; only read-only query clauses are allowed", n.Symbol()),
				Ref:     n.Symbol(),
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if cl.sel == nil {
		return nil, shapeErr("query has no %q clause", clauseSelect)
	}
	if cl.from == nil {
		return nil, shapeErr("query has no %q clause", clauseFrom)
	}
	return cl, nil
}

// tableParts splits (from table [alias]) or (join table [alias] cond).
func tableParts(n sexpr.Node, isJoin bool) (table, alias string, cond *sexpr.Node, err error) {
	kids := n.Children()
	if isJoin {
		if len(kids) < 2 || len(kids) > 3 {
			return "", "", nil, shapeErr("%q expects (table [alias] condition), got %d arguments", n.Symbol(), len(kids))
		}
		last := kids[len(kids)-1]
		cond = &last
		kids = kids[:len(kids)-1]
	} else if len(kids) < 1 || len(kids) > 2 {
		return "", "", nil, shapeErr("%q expects (table [alias]), got %d arguments", n.Symbol(), len(kids))
	}
	if table, err = nameArg(kids[0], "table name"); err != nil {
		return "", "", nil, err
	}
	if len(kids) == 2 {
		if alias, err = nameArg(kids[1], "table alias"); err != nil {
			return "", "", nil, err
		}
	}
	return table, alias, cond, nil
}

func (c *compiler) bindTable(n sexpr.Node, isJoin bool) error {
	table, alias, _, err := tableParts(n, isJoin)
	if err != nil {
		return err
	}
	if c.schema != nil && !c.schema.HasTable(table) {
		return &ValidationError{
			Code:    ErrQueryUnknownTable,
			Message: fmt.Sprintf("table %q is not in the schema catalog", table),
			Ref:     table,
		}
	}
	key := fold(table)
	if alias != "" {
		key = fold(alias)
	}
	if _, dup := c.scope[key]; dup {
		return shapeErr("table or alias %q is bound more than once", key)
	}
	c.scope[key] = fold(table)
	c.order = append(c.order, key)
	return nil
}

func (c *compiler) tableRef(n sexpr.Node, isJoin bool) (string, error) {
	table, alias, _, err := tableParts(n, isJoin)
	if err != nil {
		return "", err
	}
	if alias == "" {
		return ident(table), nil
	}
	return ident(table) + " AS " + ident(alias), nil
}

func (c *compiler) join(n sexpr.Node) (string, error) {
	ref, err := c.tableRef(n, true)
	if err != nil {
		return "", err
	}
	_, _, cond, err := tableParts(n, true)
	if err != nil {
		return "", err
	}
	on, err := c.expr(*cond, false)
	if err != nil {
		return "", err
	}
	kw := "INNER JOIN"
	if n.Symbol() == clauseLeftJoin {
		kw = "LEFT JOIN"
	}
	return kw + " " + ref + " ON " + on, nil
}

func (c *compiler) selectList(n sexpr.Node) (string, error) {
	kids := n.Children()
	distinct := false
	if len(kids) > 0 && !kids[0].IsLiteral() && kids[0].Symbol() == "distinct" {
		if kids[0].Len() != 0 {
			return "", shapeErr("%q marker takes no arguments", "distinct")
		}
		distinct = true
		kids = kids[1:]
	}
	if len(kids) == 0 {
		return "", shapeErr("%q needs at least one expression", clauseSelect)
	}
	items := make([]string, 0, len(kids))
	for _, k := range kids {
		if !k.IsLiteral() && k.Symbol() == "as" {
			if k.Len() != 2 {
				return "", shapeErr("%q expects (expr alias)", "as")
			}
			alias, err := nameArg(k.Child(1), "column alias")
			if err != nil {
				return "", err
			}
			e, err := c.expr(k.Child(0), false)
			if err != nil {
				return "", err
			}
			c.aliases[fold(alias)] = true
			items = append(items, e+" AS "+ident(alias))
			continue
		}
		e, err := c.expr(k, false)
		if err != nil {
			return "", err
		}
		items = append(items, e)
	}
	prefix := "SELECT "
	if distinct {
		prefix = "SELECT DISTINCT "
	}
	return prefix + strings.Join(items, ", "), nil
}

func (c *compiler) singleExpr(n sexpr.Node) (string, error) {
	if n.Len() != 1 {
		return "", shapeErr("%q expects exactly one condition, got %d", n.Symbol(), n.Len())
	}
	return c.expr(n.Child(0), false)
}

func (c *compiler) singleExprAliased(n sexpr.Node) (string, error) {
	if n.Len() != 1 {
		return "", shapeErr("%q expects exactly one condition, got %d", n.Symbol(), n.Len())
	}
	return c.expr(n.Child(0), true)
}

func (c *compiler) exprList(n sexpr.Node, aliased bool) (string, error) {
	if n.Len() == 0 {
		return "", shapeErr("%q needs at least one expression", n.Symbol())
	}
	items := make([]string, 0, n.Len())
	for _, k := range n.Children() {
		e, err := c.expr(k, aliased)
		if err != nil {
			return "", err
		}
		items = append(items, e)
	}
	return strings.Join(items, ", "), nil
}

func (c *compiler) orderTerms(n sexpr.Node) (string, error) {
	if n.Len() == 0 {
		return "", shapeErr("%q needs at least one term", clauseOrderBy)
	}
	terms := make([]string, 0, n.Len())
	for _, k := range n.Children() {
		dir := ""
		target := k
		if !k.IsLiteral() && (k.Symbol() == "asc" || k.Symbol() == "desc") {
			if k.Len() != 1 {
				return "", shapeErr("%q expects one expression", k.Symbol())
			}
			dir = " " + strings.ToUpper(k.Symbol())
			target = k.Child(0)
		}
		e, err := c.expr(target, true)
		if err != nil {
			return "", err
		}
		terms = append(terms, e+dir)
	}
	return strings.Join(terms, ", "), nil
}

// expr renders n without enclosing parentheses. aliased permits
// unqualified references to select-list aliases.
func (c *compiler) expr(n sexpr.Node, aliased bool) (string, error) {
	if n.IsLiteral() {
		return literal(n)
	}
	sym := n.Symbol()
	kids := n.Children()
	arity := func(want int) error {
		if len(kids) != want {
			return shapeErr("%q expects %d argument(s), got %d", sym, want, len(kids))
		}
		return nil
	}

	switch sym {
	case "col":
		return c.column(n, aliased)

	case "*":
		switch len(kids) {
		case 0:
			return "*", nil
		case 1:
			q, err := nameArg(kids[0], "table qualifier")
			if err != nil {
				return "", err
			}
			if _, ok := c.lookup(fold(q)); !ok {
				return "", unknownQualifier(q)
			}
			return ident(q) + ".*", nil
		case 2:
			return c.binary(kids, "*", aliased)
		default:
			return "", shapeErr("%q expects 0, 1 or 2 arguments, got %d", sym, len(kids))
		}

	case "count":
		if err := arity(1); err != nil {
			return "", err
		}
		return c.call("COUNT", kids, aliased)
	case "count-distinct":
		if err := arity(1); err != nil {
			return "", err
		}
		inner, err := c.expr(kids[0], aliased)
		if err != nil {
			return "", err
		}
		return "COUNT(DISTINCT " + inner + ")", nil
	case "sum", "avg", "min", "max", "lower", "upper":
		if err := arity(1); err != nil {
			return "", err
		}
		return c.call(strings.ToUpper(sym), kids, aliased)
	case "coalesce":
		if len(kids) == 0 {
			return "", shapeErr("%q needs at least one argument", sym)
		}
		return c.call("COALESCE", kids, aliased)

	case "+", "-", "/":
		if err := arity(2); err != nil {
			return "", err
		}
		return c.binary(kids, sym, aliased)

	case "and", "or":
		if len(kids) == 0 {
			return "", shapeErr("%q needs at least one operand", sym)
		}
		ops := make([]string, 0, len(kids))
		for _, k := range kids {
			s, err := c.operand(k, aliased)
			if err != nil {
				return "", err
			}
			ops = append(ops, s)
		}
		return strings.Join(ops, " "+strings.ToUpper(sym)+" "), nil
	case "not":
		if err := arity(1); err != nil {
			return "", err
		}
		s, err := c.operand(kids[0], aliased)
		if err != nil {
			return "", err
		}
		return "NOT " + s, nil

	case "=", "<", "<=", ">", ">=":
		if err := arity(2); err != nil {
			return "", err
		}
		return c.binary(kids, sym, aliased)
	case "!=":
		if err := arity(2); err != nil {
			return "", err
		}
		return c.binary(kids, "<>", aliased)
	case "like":
		if err := arity(2); err != nil {
			return "", err
		}
		return c.binary(kids, "LIKE", aliased)
	case "ilike", "regex":
		if err := arity(2); err != nil {
			return "", err
		}
		op, err := c.dialectOperator(sym)
		if err != nil {
			return "", err
		}
		return c.binary(kids, op, aliased)

	case "in":
		if len(kids) < 2 {
			return "", shapeErr("%q expects a value and at least one candidate", sym)
		}
		lhs, err := c.operand(kids[0], aliased)
		if err != nil {
			return "", err
		}
		vals := make([]string, 0, len(kids)-1)
		for _, k := range kids[1:] {
			v, err := c.expr(k, aliased)
			if err != nil {
				return "", err
			}
			vals = append(vals, v)
		}
		return lhs + " IN (" + strings.Join(vals, ", ") + ")", nil
	case "between":
		if err := arity(3); err != nil {
			return "", err
		}
		rendered := make([]string, 3)
		for i, k := range kids {
			s, err := c.operand(k, aliased)
			if err != nil {
				return "", err
			}
			rendered[i] = s
		}
		return rendered[0] + " BETWEEN " + rendered[1] + " AND " + rendered[2], nil
	case "is-null", "is-not-null":
		if err := arity(1); err != nil {
			return "", err
		}
		s, err := c.operand(kids[0], aliased)
		if err != nil {
			return "", err
		}
		if sym == "is-null" {
			return s + " IS NULL", nil
		}
		return s + " IS NOT NULL", nil
	}

	return "", &ValidationError{
		Code:    ErrQueryShape,
		Message: fmt.Sprintf("unrecognized expression %q", sym),
		Ref:     sym,
	}
}

// dialectOperator is the single point where dialects diverge.
func (c *compiler) dialectOperator(sym string) (string, error) {
	switch c.dialect {
	case ANSI:
		switch sym {
		case "ilike":
			return "LIKE", nil
		case "regex":
			return "", &ValidationError{
				Code:    ErrQueryDialectCapability,
				Message: fmt.Sprintf("%q is not available in the %s dialect", sym, c.dialect),
				Ref:     sym,
			}
		}
	case Postgres:
		switch sym {
		case "ilike":
			return "ILIKE", nil
		case "regex":
			return "~", nil
		}
	}
	return "", &ValidationError{Code: ErrQueryDialectCapability, Message: "unsupported operator", Ref: sym}
}

// operand renders n, parenthesised when n is itself an operator node.
func (c *compiler) operand(n sexpr.Node, aliased bool) (string, error) {
	s, err := c.expr(n, aliased)
	if err != nil {
		return "", err
	}
	if isOperator(n) {
		return "(" + s + ")", nil
	}
	return s, nil
}

func isOperator(n sexpr.Node) bool {
	if n.IsLiteral() {
		return false
	}
	switch n.Symbol() {
	case "and", "or", "not", "=", "!=", "<", "<=", ">", ">=",
		"like", "ilike", "regex", "in", "between", "is-null", "is-not-null",
		"+", "-", "/":
		return true
	case "*":
		return n.Len() == 2
	}
	return false
}

func (c *compiler) binary(kids []sexpr.Node, op string, aliased bool) (string, error) {
	l, err := c.operand(kids[0], aliased)
	if err != nil {
		return "", err
	}
	r, err := c.operand(kids[1], aliased)
	if err != nil {
		return "", err
	}
	return l + " " + op + " " + r, nil
}

func (c *compiler) call(fn string, kids []sexpr.Node, aliased bool) (string, error) {
	args := make([]string, 0, len(kids))
	for _, k := range kids {
		s, err := c.expr(k, aliased)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}
	return fn + "(" + strings.Join(args, ", ") + ")", nil
}

func (c *compiler) column(n sexpr.Node, aliased bool) (string, error) {
	switch n.Len() {
	case 1:
		name, err := nameArg(n.Child(0), "column name")
		if err != nil {
			return "", err
		}
		if err := c.checkUnqualified(name, aliased); err != nil {
			return "", err
		}
		return ident(name), nil
	case 2:
		qual, err := nameArg(n.Child(0), "table qualifier")
		if err != nil {
			return "", err
		}
		name, err := nameArg(n.Child(1), "column name")
		if err != nil {
			return "", err
		}
		table, ok := c.lookup(fold(qual))
		if !ok {
			return "", unknownQualifier(qual)
		}
		if c.schema != nil && !c.schema.HasColumn(table, name) {
			return "", &ValidationError{
				Code:    ErrQueryUnknownColumn,
				Message: fmt.Sprintf("column %q does not exist in table %q", name, table),
				Ref:     table + "." + name,
			}
		}
		return ident(qual) + "." + ident(name), nil
	default:
		return "", shapeErr("%q expects (name) or (qualifier name), got %d arguments", "col", n.Len())
	}
}

func (c *compiler) checkUnqualified(name string, aliased bool) error {
	if c.schema == nil {
		return nil
	}
	var owners []string
	for _, key := range c.inScope() {
		table := c.scope[key]
		if c.schema.HasColumn(table, name) {
			owners = append(owners, table)
		}
	}
	switch {
	case len(owners) == 1:
		return nil
	case len(owners) > 1:
		return &ValidationError{
			Code:    ErrQueryAmbiguousColumn,
			Message: fmt.Sprintf("column %q exists in %s; qualify it", name, strings.Join(owners, ", ")),
			Ref:     name,
		}
	case aliased && c.aliases[fold(name)]:
		return nil
	default:
		return &ValidationError{
			Code:    ErrQueryUnknownColumn,
			Message: fmt.Sprintf("column %q does not exist in any referenced table", name),
			Ref:     name,
		}
	}
}

func (c *compiler) inScope() []string {
	if c.visible > 0 && c.visible < len(c.order) {
		return c.order[:c.visible]
	}
	return c.order
}

func (c *compiler) lookup(key string) (string, bool) {
	for _, k := range c.inScope() {
		if k == key {
			return c.scope[k], true
		}
	}
	return "", false
}

func unknownQualifier(q string) *ValidationError {
	return &ValidationError{
		Code:    ErrQueryUnknownTable,
		Message: fmt.Sprintf("%q is not a table or alias bound by FROM or JOIN", q),
		Ref:     q,
	}
}

func nameArg(n sexpr.Node, what string) (string, error) {
	s, ok := n.StringValue()
	if !ok || s == "" {
		return "", shapeErr("%s must be a non-empty string, got %s", what, n)
	}
	if strings.ContainsRune(s, 0) {
		return "", shapeErr("%s contains a NUL byte", what)
	}
	return s, nil
}

func countArg(n sexpr.Node) (int64, error) {
	if n.Len() != 1 {
		return 0, shapeErr("%q expects one integer argument", n.Symbol())
	}
	v, ok := n.Child(0).IntValue()
	if !ok || v < 0 {
		return 0, shapeErr("%q expects a non-negative integer, got %s", n.Symbol(), n.Child(0))
	}
	return v, nil
}

func literal(n sexpr.Node) (string, error) {
	switch v := n.Value().(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case json.Number:
		s := string(v)
		if !jsonNumber.MatchString(s) {
			return "", shapeErr("invalid numeric literal %q", s)
		}
		return s, nil
	case string:
		if strings.ContainsRune(v, 0) {
			return "", shapeErr("string literal contains a NUL byte")
		}
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	default:
		return "", shapeErr("unsupported literal %T", v)
	}
}

func ident(s string) string {
	if simpleIdent.MatchString(s) && !reservedWords[strings.ToLower(s)] {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
