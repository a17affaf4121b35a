package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Mindburn-Labs/helm-actions/pkg/query"
	"github.com/Mindburn-Labs/helm-actions/pkg/sexpr"
)

// runCompileCmd implements `helm-actions compile`. The input is the textual
// form, e.g. (Q (select (*)) (from users)), or the JSON wire form.
//
// Exit codes:
//
//	0 = compiled, SQL on stdout
//	1 = the query is invalid
//	2 = runtime error
func runCompileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var src sourceFlags
	src.register(cmd)

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if _, err := src.merge(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	dialect, err := query.ParseDialect(src.dialect)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	schema, err := loadSchema(context.Background(), src.schema, src.schemaDriver, src.schemaDSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	data, err := readInput(cmd.Arg(0), stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	q, err := decodeQuery(strings.TrimSpace(string(data)))
	if err == nil {
		var sql string
		if sql, err = query.Compile(q, dialect, schema); err == nil {
			_, _ = fmt.Fprintln(stdout, sql)
			return 0
		}
	}
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		_, _ = fmt.Fprintf(stderr, "Invalid query: %v\n", verr)
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

// decodeQuery accepts JSON arrays as the wire form and anything else as
// text.
func decodeQuery(src string) (*query.Query, error) {
	if strings.HasPrefix(src, "[") {
		var node sexpr.Node
		if err := node.UnmarshalJSON([]byte(src)); err != nil {
			return nil, &query.ValidationError{Code: query.ErrQueryShape, Message: err.Error()}
		}
		return query.New(node)
	}
	return query.Decode(src)
}
