package catalog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectColumns = "SELECT id, description, parameters FROM action_descriptors"

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Init(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS action_descriptors")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO action_descriptors")).
		WithArgs("greet", "Greets a person", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), greet()))
	assert.NoError(t, mock.ExpectationsWereMet())

	err := store.Save(context.Background(), ActionDescriptor{})
	var derr *DescriptorError
	assert.True(t, errors.As(err, &derr), "invalid descriptors never reach the database")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "description", "parameters"}).
		AddRow("greet", "Greets a person", []byte(`[{"name":"name","typeId":"string","examples":["Ada","Grace"]}]`))
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " WHERE id = $1")).
		WithArgs("greet").
		WillReturnRows(rows)

	d, err := store.Get(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, greet(), d)

	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " WHERE id = $1")).
		WithArgs("farewell").
		WillReturnError(sql.ErrNoRows)
	_, err = store.Get(ctx, "farewell")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRegistry(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "description", "parameters"}).
		AddRow("greet", "Greets a person", []byte(`[{"name":"name","typeId":"string","examples":["Ada","Grace"]}]`)).
		AddRow("report", "Runs a report query", []byte(`[{"name":"query","typeId":"query"},{"name":"limit","typeId":"int","examples":["10"]}]`))
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " ORDER BY position")).WillReturnRows(rows)

	reg, err := store.LoadRegistry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ActionDescriptor{greet(), report()}, reg.ListDescriptors())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByIDs(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "description", "parameters"}).
		AddRow("greet", "Greets a person", []byte(`[]`))
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " WHERE id = ANY($1) ORDER BY position")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	ds, err := store.ListByIDs(context.Background(), []string{"greet", "ghost"})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "greet", ds[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CorruptParameters(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "description", "parameters"}).
		AddRow("greet", "Greets a person", []byte(`{not json`))
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " ORDER BY position")).WillReturnRows(rows)

	_, err := store.List(context.Background())
	assert.Error(t, err)
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM action_descriptors WHERE id = $1")).
		WithArgs("greet").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(ctx, "greet"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM action_descriptors WHERE id = $1")).
		WithArgs("greet").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Delete(ctx, "greet"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ServerErrorsCarrySQLState(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns)).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "action_descriptors" does not exist`})

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlstate 42P01")

	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
}
