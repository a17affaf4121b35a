package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Mindburn-Labs/helm-actions/pkg/catalog"
)

// runCatalogCmd implements `helm-actions catalog`. It prints the catalog in
// the prompt text format, or as JSON with -json. -action narrows the output
// to the named actions. With -sync the file catalog is written to the
// Postgres store named by -catalog-dsn, and -delete removes one action from
// that store.
func runCatalogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("catalog", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path       string
		dsn        string
		actions    string
		remove     string
		jsonOutput bool
		sync       bool
	)
	cmd.StringVar(&path, "catalog", "", "Path to a YAML action catalog")
	cmd.StringVar(&dsn, "catalog-dsn", "", "Postgres DSN holding the action catalog")
	cmd.StringVar(&actions, "action", "", "Comma-separated action ids to show")
	cmd.StringVar(&remove, "delete", "", "Delete this action id from the -catalog-dsn store")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the catalog and its fingerprint as JSON")
	cmd.BoolVar(&sync, "sync", false, "Write the -catalog file into the -catalog-dsn store")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	switch {
	case sync:
		if path == "" || dsn == "" {
			_, _ = fmt.Fprintln(stderr, "Error: -sync needs both -catalog and -catalog-dsn")
			return 2
		}
		n, err := syncCatalog(ctx, path, dsn)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: sync failed: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Synced %d actions\n", n)
		return 0
	case remove != "":
		if dsn == "" {
			_, _ = fmt.Fprintln(stderr, "Error: -delete needs -catalog-dsn")
			return 2
		}
		if err := withStore(dsn, func(s *catalog.PostgresStore) error { return s.Delete(ctx, remove) }); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: delete %s: %v\n", remove, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "Deleted %s\n", remove)
		return 0
	}

	if path != "" {
		dsn = ""
	}
	var (
		reg *catalog.Registry
		err error
	)
	if ids := splitIDs(actions); len(ids) > 0 {
		reg, err = selectActions(ctx, path, dsn, ids)
	} else {
		reg, err = loadActions(ctx, path, dsn)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !jsonOutput {
		if err := catalog.WriteCatalogText(stdout, reg); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return 0
	}

	fp, err := catalog.CatalogFingerprint(reg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"actions": reg.ListDescriptors(), "fingerprint": fp}); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// selectActions returns a Registry holding only ids, in the order given.
// A missing id is catalog.ErrNotFound.
func selectActions(ctx context.Context, path, dsn string, ids []string) (*catalog.Registry, error) {
	var found []catalog.ActionDescriptor
	switch {
	case dsn != "" && len(ids) == 1:
		err := withStore(dsn, func(s *catalog.PostgresStore) error {
			d, err := s.Get(ctx, ids[0])
			found = append(found, d)
			return err
		})
		if err != nil {
			return nil, err
		}
	case dsn != "":
		err := withStore(dsn, func(s *catalog.PostgresStore) error {
			var err error
			found, err = s.ListByIDs(ctx, ids)
			return err
		})
		if err != nil {
			return nil, err
		}
	default:
		all, err := loadActions(ctx, path, "")
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if d, ok := all.FindDescriptor(id); ok {
				found = append(found, d)
			}
		}
	}

	reg := catalog.NewRegistry()
	for _, id := range ids {
		var hit bool
		for _, d := range found {
			if d.ID == id {
				if err := reg.Register(d); err != nil {
					return nil, err
				}
				hit = true
				break
			}
		}
		if !hit {
			return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
		}
	}
	return reg, nil
}

func withStore(dsn string, fn func(*catalog.PostgresStore) error) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(catalog.NewPostgresStore(db))
}

func syncCatalog(ctx context.Context, path, dsn string) (int, error) {
	reg, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	err = withStore(dsn, func(store *catalog.PostgresStore) error {
		if err := store.Init(ctx); err != nil {
			return err
		}
		for _, d := range reg.ListDescriptors() {
			if err := store.Save(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reg.Len(), nil
}
