// Package introspect builds query.SchemaCatalog values from live databases
// or schema files, so query parameters can be checked against real tables.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// Supported drivers for Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects with the named driver, introspects, and closes the
// connection again. The returned catalog does not reference the database.
func Open(ctx context.Context, driver, dsn string) (*query.SchemaCatalog, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("introspect: open %s: %w", driver, err)
	}
	defer func() { _ = db.Close() }()

	switch driver {
	case DriverSQLite:
		return SQLite(ctx, db)
	case DriverPostgres:
		return Postgres(ctx, db)
	default:
		return nil, fmt.Errorf("introspect: unsupported driver %q", driver)
	}
}

// SQLite reads user tables from sqlite_master and their columns from
// pragma_table_info.
func SQLite(ctx context.Context, db *sql.DB) (*query.SchemaCatalog, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("introspect: list sqlite tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("introspect: scan sqlite table: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("introspect: list sqlite tables: %w", err)
	}
	_ = rows.Close()

	catalog := query.NewSchemaCatalog(nil)
	for _, table := range tables {
		cols, err := sqliteColumns(ctx, db, table)
		if err != nil {
			return nil, err
		}
		catalog.AddTable(table, cols...)
	}
	slog.Default().With("component", "introspect").Debug("sqlite schema loaded", "tables", len(tables))
	return catalog, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("introspect: columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect: scan column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Postgres reads columns from information_schema for the given schemas
// (default "public").
func Postgres(ctx context.Context, db *sql.DB, schemas ...string) (*query.SchemaCatalog, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = ANY($1)
		ORDER BY table_name, ordinal_position`, pq.Array(schemas))
	if err != nil {
		return nil, fmt.Errorf("introspect: list postgres columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	catalog := query.NewSchemaCatalog(nil)
	n := 0
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("introspect: scan postgres column: %w", err)
		}
		catalog.AddTable(table, column)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect: list postgres columns: %w", err)
	}
	slog.Default().With("component", "introspect").Debug("postgres schema loaded", "columns", n, "schemas", schemas)
	return catalog, nil
}

// File is the YAML schema shape:
//
//	tables:
//	  users: [id, name, email]
//	  orders: [id, user_id, total]
type File struct {
	Tables map[string][]string `yaml:"tables"`
}

// Load decodes a YAML schema file.
func Load(r io.Reader) (*query.SchemaCatalog, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("introspect: decode schema: %w", err)
	}
	return query.NewSchemaCatalog(f.Tables), nil
}

// LoadFile reads a YAML schema file from path.
func LoadFile(path string) (*query.SchemaCatalog, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("introspect: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Write encodes catalog in the YAML schema shape read by Load.
func Write(w io.Writer, catalog *query.SchemaCatalog) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Tables: catalog.Map()}); err != nil {
		return fmt.Errorf("introspect: encode schema: %w", err)
	}
	return enc.Close()
}
