package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/helm-actions/pkg/introspect"
)

// runSchemaCmd implements `helm-actions schema`: introspect a database and
// write the schema file consumed by -schema.
func runSchemaCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("schema", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		driver string
		dsn    string
		out    string
	)
	cmd.StringVar(&driver, "driver", introspect.DriverSQLite, "Database driver (sqlite or postgres)")
	cmd.StringVar(&dsn, "dsn", "", "Database to introspect (REQUIRED)")
	cmd.StringVar(&out, "out", "", "Write the schema file here instead of stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dsn == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -dsn is required")
		return 2
	}

	schema, err := introspect.Open(context.Background(), driver, dsn)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out) //nolint:gosec // operator supplied path
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := introspect.Write(w, schema); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
