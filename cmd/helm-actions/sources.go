package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	_ "github.com/lib/pq" // Postgres Driver

	"github.com/Mindburn-Labs/helm-actions/pkg/catalog"
	"github.com/Mindburn-Labs/helm-actions/pkg/coercion"
	"github.com/Mindburn-Labs/helm-actions/pkg/config"
	"github.com/Mindburn-Labs/helm-actions/pkg/introspect"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

var errNoCatalog = errors.New("an action catalog is required (-catalog or -catalog-dsn)")

// loadActions reads the catalog from a YAML file, or from Postgres when dsn
// is set.
func loadActions(ctx context.Context, path, dsn string) (*catalog.Registry, error) {
	switch {
	case dsn != "":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()
		return catalog.NewPostgresStore(db).LoadRegistry(ctx)
	case path != "":
		return catalog.LoadFile(path)
	default:
		return nil, errNoCatalog
	}
}

// loadSchema returns nil when no source is configured, which disables
// table and column checks.
func loadSchema(ctx context.Context, path, driver, dsn string) (*query.SchemaCatalog, error) {
	switch {
	case dsn != "":
		return introspect.Open(ctx, driver, dsn)
	case path != "":
		return introspect.LoadFile(path)
	default:
		return nil, nil
	}
}

// buildCoercions registers the builtin types plus one JSON Schema type per
// entry in types.
func buildCoercions(types map[string]string) (*coercion.Registry, error) {
	ids := make([]string, 0, len(types))
	for id := range types {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b := coercion.NewBuilder().WithBuiltins()
	for _, id := range ids {
		b.RegisterSchema(id, types[id])
	}
	return b.Build()
}

// loadConfig reads the environment, overlaid with path when given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Load()
		return cfg, cfg.Validate()
	}
	return config.LoadFile(path)
}

// readInput reads the named file, or stdin for "-" or no name.
func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin
