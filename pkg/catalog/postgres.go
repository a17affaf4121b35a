package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists action descriptors so several resolver processes
// can share one catalog.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgCatalogSchema = `
CREATE TABLE IF NOT EXISTS action_descriptors (
	position BIGSERIAL,
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	parameters JSONB NOT NULL,
	fingerprint TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Init creates the table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgCatalogSchema)
	return wrapPQ("init", err)
}

// Save upserts d. An updated descriptor keeps its original position.
func (s *PostgresStore) Save(ctx context.Context, d ActionDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	params, err := json.Marshal(d.Parameters)
	if err != nil {
		return fmt.Errorf("catalog: marshal parameters: %w", err)
	}
	fp, err := Fingerprint(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO action_descriptors (id, description, parameters, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET description = $2, parameters = $3, fingerprint = $4, updated_at = $5
	`
	_, err = s.db.ExecContext(ctx, query, d.ID, d.Description, params, fp, time.Now().UTC())
	return wrapPQ("save "+d.ID, err)
}

// Get returns the descriptor for id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (ActionDescriptor, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, description, parameters FROM action_descriptors WHERE id = $1", id)
	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ActionDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ActionDescriptor{}, wrapPQ("get "+id, err)
	}
	return d, nil
}

// List returns every stored descriptor in insertion order.
func (s *PostgresStore) List(ctx context.Context) ([]ActionDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, description, parameters FROM action_descriptors ORDER BY position")
	if err != nil {
		return nil, wrapPQ("list", err)
	}
	return collect(rows)
}

// ListByIDs returns the stored descriptors among ids, in insertion order.
// Unknown ids are skipped.
func (s *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]ActionDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, description, parameters FROM action_descriptors WHERE id = ANY($1) ORDER BY position",
		pq.Array(ids))
	if err != nil {
		return nil, wrapPQ("list by ids", err)
	}
	return collect(rows)
}

// Delete removes id. Deleting an absent id returns ErrNotFound.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM action_descriptors WHERE id = $1", id)
	if err != nil {
		return wrapPQ("delete "+id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// LoadRegistry hydrates an in-memory Registry from the store. Resolution
// then runs against the Registry without touching the database.
func (s *PostgresStore) LoadRegistry(ctx context.Context) (*Registry, error) {
	ds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry()
	for _, d := range ds {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("catalog: stored descriptor %s: %w", d.ID, err)
		}
	}
	return reg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row rowScanner) (ActionDescriptor, error) {
	var d ActionDescriptor
	var params []byte
	if err := row.Scan(&d.ID, &d.Description, &params); err != nil {
		return ActionDescriptor{}, err
	}
	if err := json.Unmarshal(params, &d.Parameters); err != nil {
		return ActionDescriptor{}, fmt.Errorf("catalog: decode parameters of %s: %w", d.ID, err)
	}
	return d, nil
}

func collect(rows *sql.Rows) ([]ActionDescriptor, error) {
	defer func() { _ = rows.Close() }()
	var out []ActionDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, wrapPQ("scan", rows.Err())
}

// wrapPQ annotates server errors with their SQLSTATE.
func wrapPQ(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("catalog: %s: %s (sqlstate %s): %w", op, pqErr.Message, pqErr.Code, err)
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}
