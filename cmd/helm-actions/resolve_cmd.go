package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/helm-actions/pkg/api"
	"github.com/Mindburn-Labs/helm-actions/pkg/config"
	"github.com/Mindburn-Labs/helm-actions/pkg/plan"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// sourceFlags are shared by commands that need a catalog, schema or dialect.
// Unset flags fall back to the configuration.
type sourceFlags struct {
	config       string
	catalog      string
	catalogDSN   string
	schema       string
	schemaDriver string
	schemaDSN    string
	dialect      string
}

func (f *sourceFlags) register(cmd *flag.FlagSet) {
	cmd.StringVar(&f.config, "config", "", "Path to a YAML config file")
	cmd.StringVar(&f.catalog, "catalog", "", "Path to a YAML action catalog")
	cmd.StringVar(&f.catalogDSN, "catalog-dsn", "", "Postgres DSN holding the action catalog")
	cmd.StringVar(&f.schema, "schema", "", "Path to a YAML schema file")
	cmd.StringVar(&f.schemaDriver, "schema-driver", "", "Driver for -schema-dsn (sqlite or postgres)")
	cmd.StringVar(&f.schemaDSN, "schema-dsn", "", "Database to introspect for the schema")
	cmd.StringVar(&f.dialect, "dialect", "", "SQL dialect (ansi or postgres)")
}

// merge fills unset flags from the configuration and returns it.
func (f *sourceFlags) merge() (*config.Config, error) {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return nil, err
	}
	if f.catalog == "" && f.catalogDSN == "" {
		f.catalog, f.catalogDSN = cfg.CatalogPath, cfg.CatalogDatabaseURL
	}
	if f.schema == "" && f.schemaDSN == "" {
		f.schema, f.schemaDriver, f.schemaDSN = cfg.SchemaPath, cfg.SchemaDriver, cfg.SchemaDSN
	}
	if f.dialect == "" {
		f.dialect = cfg.Dialect
	}
	return cfg, nil
}

// runResolveCmd implements `helm-actions resolve`.
//
// Exit codes:
//
//	0 = every step bound
//	1 = at least one error step
//	2 = runtime error
func runResolveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("resolve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var src sourceFlags
	src.register(cmd)

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := src.merge()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	rc, err := resolutionContext(ctx, &src, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	data, err := readInput(cmd.Arg(0), stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	raw, err := plan.ParseRawPlan(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	resolved, err := plan.Resolve(raw, rc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	fp, err := plan.Fingerprint(resolved)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(api.ResolveResponse{Plan: resolved, Fingerprint: fp, HasErrors: resolved.HasErrors()}); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if resolved.HasErrors() {
		return 1
	}
	return 0
}

// resolutionContext builds the collaborators named by src. Extra coercion
// types come from cfg.
func resolutionContext(ctx context.Context, src *sourceFlags, cfg *config.Config) (plan.ResolutionContext, error) {
	dialect, err := query.ParseDialect(src.dialect)
	if err != nil {
		return plan.ResolutionContext{}, err
	}
	actions, err := loadActions(ctx, src.catalog, src.catalogDSN)
	if err != nil {
		return plan.ResolutionContext{}, err
	}
	schema, err := loadSchema(ctx, src.schema, src.schemaDriver, src.schemaDSN)
	if err != nil {
		return plan.ResolutionContext{}, err
	}
	coercions, err := buildCoercions(cfg.Types)
	if err != nil {
		return plan.ResolutionContext{}, err
	}
	return plan.ResolutionContext{
		Actions:   actions,
		Coercions: coercions,
		Schema:    schema,
		Dialect:   dialect,
	}, nil
}
