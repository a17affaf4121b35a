package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helm-actions/pkg/sexpr"
)

func testSchema() *SchemaCatalog {
	return NewSchemaCatalog(map[string][]string{
		"users":  {"id", "name", "active", "age", "email"},
		"orders": {"id", "user_id", "total", "status"},
	})
}

func col(parts ...string) sexpr.Node {
	kids := make([]sexpr.Node, len(parts))
	for i, p := range parts {
		kids[i] = sexpr.Str(p)
	}
	return sexpr.List("col", kids...)
}

func mustParse(t *testing.T, src string) *Query {
	t.Helper()
	n, err := sexpr.Parse(src)
	require.NoError(t, err)
	q, err := New(n)
	require.NoError(t, err)
	return q
}

func requireCode(t *testing.T, err error, code string) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	assert.Equal(t, code, verr.Code, verr.Error())
	return verr
}

func TestNew_ValidationGate(t *testing.T) {
	_, err := New(sexpr.List("Q", sexpr.List("select", col("id")), sexpr.List("from", sexpr.Str("users"))))
	require.NoError(t, err)

	_, err = New(sexpr.Str("Q"))
	verr := requireCode(t, err, ErrQueryNotQuery)
	assert.Contains(t, verr.Message, "literal")

	_, err = New(sexpr.List("SELECT", sexpr.List("from", sexpr.Str("users"))))
	verr = requireCode(t, err, ErrQueryNotQuery)
	assert.Contains(t, verr.Message, `expected root symbol "Q"`)
	assert.Equal(t, "SELECT", verr.Ref)

	assert.Panics(t, func() { MustNew(sexpr.Null()) })
}

func TestCompile_Rendering(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "aggregate with alias ordering",
			src:  `(Q (select (col name) (as (count (*)) n)) (from users) (where (and (= (col active) true) (> (col age) 21))) (group-by (col name)) (order-by (desc (col n))) (limit 10))`,
			want: "SELECT name, COUNT(*) AS n FROM users WHERE (active = TRUE) AND (age > 21) GROUP BY name ORDER BY n DESC LIMIT 10",
		},
		{
			name: "join with aliases",
			src:  `(Q (select (col u name) (sum (col o total))) (from orders o) (join users u (= (col o user_id) (col u id))) (group-by (col u name)) (having (> (sum (col o total)) 100)))`,
			want: "SELECT u.name, SUM(o.total) FROM orders AS o INNER JOIN users AS u ON o.user_id = u.id GROUP BY u.name HAVING SUM(o.total) > 100",
		},
		{
			name: "left join and distinct",
			src:  `(Q (select (distinct) (col users email)) (from users) (left-join orders (= (col orders user_id) (col users id))) (where (is-null (col orders id))))`,
			want: "SELECT DISTINCT users.email FROM users LEFT JOIN orders ON orders.user_id = users.id WHERE orders.id IS NULL",
		},
		{
			name: "clause order in tree does not matter",
			src:  `(Q (limit 5) (offset 10) (from users) (order-by (asc (col age)) (col name)) (select (* users)))`,
			want: "SELECT users.* FROM users ORDER BY age ASC, name LIMIT 5 OFFSET 10",
		},
		{
			name: "functions and arithmetic",
			src:  `(Q (select (lower (col name)) (coalesce (col email) "n/a") (count-distinct (col age)) (+ (col age) 1)) (from users))`,
			want: "SELECT LOWER(name), COALESCE(email, 'n/a'), COUNT(DISTINCT age), age + 1 FROM users",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := mustParse(t, tt.src)
			for _, d := range []Dialect{ANSI, Postgres} {
				got, err := Compile(q, d, testSchema())
				require.NoError(t, err, d.String())
				assert.Equal(t, tt.want, got, d.String())
			}
		})
	}
}

func TestCompile_PredicatesWithoutSchema(t *testing.T) {
	q := mustParse(t, `(Q (select (*)) (from users) (where (or (in (col status) "a" "b") (between (col age) 18 65) (is-null (col email)) (not (!= (col active) false)))))`)
	got, err := Compile(q, ANSI, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM users WHERE (status IN ('a', 'b')) OR (age BETWEEN 18 AND 65) OR (email IS NULL) OR (NOT (active <> FALSE))",
		got)
}

func TestCompile_CaseInsensitiveMatchByDialect(t *testing.T) {
	q := mustParse(t, `(Q (select (col name)) (from users) (where (ilike (col name) "a%")))`)

	ansi, err := Compile(q, ANSI, testSchema())
	require.NoError(t, err)
	pg, err := Compile(q, Postgres, testSchema())
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM users WHERE name LIKE 'a%'", ansi)
	assert.Equal(t, "SELECT name FROM users WHERE name ILIKE 'a%'", pg)
}

// TestCompile_JoinConditionSeesEarlierTablesOnly verifies that an ON
// condition cannot reference a table joined after it.
func TestCompile_JoinConditionSeesEarlierTablesOnly(t *testing.T) {
	schema := NewSchemaCatalog(map[string][]string{
		"a": {"id"}, "b": {"id", "a_id"}, "c": {"id", "b_id", "note"},
	})

	forward := mustParse(t, `(Q (select (*)) (from a) (join b (= (col b id) (col c id))) (join c (= (col c b_id) (col b id))))`)
	for _, s := range []*SchemaCatalog{schema, nil} {
		_, err := Compile(forward, Postgres, s)
		verr := requireCode(t, err, ErrQueryUnknownTable)
		assert.Equal(t, "c", verr.Ref)
	}

	unqualified := mustParse(t, `(Q (select (*)) (from a) (join b (= (col a_id) (col note))) (join c (= (col b_id) (col b id))))`)
	_, err := Compile(unqualified, Postgres, schema)
	verr := requireCode(t, err, ErrQueryUnknownColumn)
	assert.Equal(t, "note", verr.Ref)

	chained := mustParse(t, `(Q (select (col note)) (from a) (join b (= (col b a_id) (col a id))) (join c (= (col c b_id) (col b id))) (where (= (col a id) 1)))`)
	sql, err := Compile(chained, Postgres, schema)
	require.NoError(t, err)
	assert.Equal(t, "SELECT note FROM a INNER JOIN b ON b.a_id = a.id INNER JOIN c ON c.b_id = b.id WHERE a.id = 1", sql)
}

// TestCompile_NonASCIIBareAtoms verifies bare atoms with multi-byte runes
// stay whole.
func TestCompile_NonASCIIBareAtoms(t *testing.T) {
	q := mustParse(t, `(Q (select (*)) (from users) (where (in (col name) càfe Århus Рх)))`)
	sql, err := Compile(q, ANSI, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE name IN ('càfe', 'Århus', 'Рх')", sql)
}

func TestCompile_RegexIsPostgresOnly(t *testing.T) {
	q := mustParse(t, `(Q (select (col name)) (from users) (where (regex (col name) "^A")))`)

	pg, err := Compile(q, Postgres, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users WHERE name ~ '^A'", pg)

	_, err = Compile(q, ANSI, nil)
	verr := requireCode(t, err, ErrQueryDialectCapability)
	assert.Equal(t, "regex", verr.Ref)
}

func TestCompile_SchemaValidationIsOptIn(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		ref  string
	}{
		{"unknown table", `(Q (select (col x)) (from ghosts))`, ErrQueryUnknownTable, "ghosts"},
		{"unknown column", `(Q (select (col nickname)) (from users))`, ErrQueryUnknownColumn, "nickname"},
		{"unknown qualified column", `(Q (select (col users nickname)) (from users))`, ErrQueryUnknownColumn, "users.nickname"},
		{"unknown join table", `(Q (select (col users id)) (from users) (join ghosts (= (col ghosts id) (col users id))))`, ErrQueryUnknownTable, "ghosts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := mustParse(t, tt.src)

			_, err := Compile(q, ANSI, testSchema())
			verr := requireCode(t, err, tt.code)
			assert.Equal(t, tt.ref, verr.Ref)

			_, err = Compile(q, ANSI, nil)
			assert.NoError(t, err)
		})
	}
}

func TestCompile_AmbiguousColumn(t *testing.T) {
	q := mustParse(t, `(Q (select (col id)) (from orders) (join users (= (col orders user_id) (col users id))))`)
	_, err := Compile(q, ANSI, testSchema())
	requireCode(t, err, ErrQueryAmbiguousColumn)
}

func TestCompile_QualifierMustBeInScope(t *testing.T) {
	q := mustParse(t, `(Q (select (col orders id)) (from users))`)
	_, err := Compile(q, ANSI, nil)
	requireCode(t, err, ErrQueryUnknownTable)
}

func TestCompile_SchemaIsCaseInsensitive(t *testing.T) {
	q := mustParse(t, `(Q (select (col Name)) (from Users))`)
	got, err := Compile(q, ANSI, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT Name FROM Users", got)
}

func TestCompile_RejectsNonQueryShapes(t *testing.T) {
	for _, src := range []string{
		`(Q (delete (from users)))`,
		`(Q (select (col id)) (from users) (update users))`,
		`(Q (select (col id)) (from users) (where (drop users)))`,
		`(Q (from users))`,
		`(Q (select (col id)))`,
		`(Q (select (col id)) (from users) (where true) (where false))`,
		`(Q (select (col id)) (from users) (limit -1))`,
		`(Q (select (col id)) (from users) (limit "10"))`,
		`(Q (select) (from users))`,
		`(Q (select (col id)) (from users) "loose")`,
		`(Q (select (col id)) (from 42))`,
		`(Q (select (col id)) (from users u) (join users u (= 1 1)))`,
		`(Q (select (= (col id))) (from users))`,
		`(Q (select (col id)) (from users) (where (in (col id))))`,
	} {
		t.Run(src, func(t *testing.T) {
			q := mustParse(t, src)
			_, err := Compile(q, Postgres, nil)
			requireCode(t, err, ErrQueryShape)
		})
	}
}

func TestCompile_QuotesIdentifiersAndLiterals(t *testing.T) {
	q, err := New(sexpr.List("Q",
		sexpr.List("select", col("first name"), col("order")),
		sexpr.List("from", sexpr.Str(`we"ird`)),
		sexpr.List("where", sexpr.List("=", col("first name"), sexpr.Str("x'; DROP TABLE users; --"))),
	))
	require.NoError(t, err)

	got, err := Compile(q, ANSI, nil)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "first name", "order" FROM "we""ird" WHERE "first name" = 'x''; DROP TABLE users; --'`,
		got)
}

func TestCompile_Deterministic(t *testing.T) {
	q := mustParse(t, `(Q (select (col u name) (col o total)) (from orders o) (join users u (= (col o user_id) (col u id))) (where (ilike (col u email) "%@example.com")))`)
	first, err := Compile(q, Postgres, testSchema())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compile(q, Postgres, testSchema())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompile_NilQueryAndBadDialect(t *testing.T) {
	_, err := Compile(nil, ANSI, nil)
	requireCode(t, err, ErrQueryShape)

	q := mustParse(t, `(Q (select (col id)) (from users))`)
	_, err = Compile(q, Dialect(9), nil)
	requireCode(t, err, ErrQueryDialectCapability)
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"": ANSI, "ANSI": ANSI, "postgres": Postgres, "PostgreSQL": Postgres, "pg": Postgres,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("oracle")
	assert.ErrorIs(t, err, ErrUnknownDialect)

	var d Dialect
	require.NoError(t, d.UnmarshalText([]byte("pg")))
	assert.Equal(t, Postgres, d)
}

func TestCompileQuery_Bound(t *testing.T) {
	q := mustParse(t, `(Q (select (col id)) (from users))`)
	c, err := CompileQuery(q, Postgres, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users", c.SQL)
	assert.Equal(t, Postgres, c.Dialect)
	assert.Same(t, q, c.Query)
}

func TestSchemaCatalog(t *testing.T) {
	s := testSchema()
	s.AddTable("Users", "Created_At")

	assert.True(t, s.HasTable("USERS"))
	assert.True(t, s.HasColumn("users", "created_at"))
	assert.False(t, s.HasColumn("ghosts", "id"))
	assert.Equal(t, []string{"orders", "users"}, s.Tables())
	assert.Equal(t, []string{"active", "age", "created_at", "email", "id", "name"}, s.Columns("users"))
	assert.Len(t, s.Map(), 2)
}

func TestDecode_Representations(t *testing.T) {
	text := `(Q (select (col name)) (from users))`
	node, err := sexpr.Parse(text)
	require.NoError(t, err)
	wire := []any{"Q", []any{"select", []any{"col", "name"}}, []any{"from", "users"}}
	object := map[string]any{"symbol": "Q", "children": []any{
		[]any{"select", []any{"col", "name"}},
		map[string]any{"symbol": "from", "children": []any{"users"}},
	}}

	for name, raw := range map[string]any{"text": text, "node": node, "wire": wire, "object": object} {
		q, err := Decode(raw)
		require.NoError(t, err, name)
		assert.True(t, node.Equal(q.Root()), name)
	}

	q := MustNew(node)
	same, err := Decode(q)
	require.NoError(t, err)
	assert.Same(t, q, same)

	for _, raw := range []any{nil, (*Query)(nil), "(Q", []any{}, []any{1, 2}, map[string]any{"children": []any{}}} {
		_, err := Decode(raw)
		requireCode(t, err, ErrQueryShape)
	}
	_, err = Decode(`(Q (select (*)) (from users) (where (= (col id) 1e400)))`)
	requireCode(t, err, ErrQueryShape)
	_, err = Decode("users")
	requireCode(t, err, ErrQueryNotQuery)
	_, err = Decode([]any{"R", []any{"from", "users"}})
	requireCode(t, err, ErrQueryNotQuery)
}
