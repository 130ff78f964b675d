package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"velancis-storefront/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	getQuery    = `SELECT value FROM storefront_state WHERE key = $1`
	deleteQuery = `DELETE FROM storefront_state WHERE key = $1`
	upsertQuery = `
		INSERT INTO storefront_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
)

func setupStateRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(getQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(upsertQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(deleteQuery))
}

func newMockedRepository(t *testing.T) (*StateRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupStateRepositoryMocks(mock)

	repo, err := NewStateRepository(db)
	require.NoError(t, err)
	return repo, mock
}

func TestNewStateRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newMockedRepository(t)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_table_is_reported", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(getQuery)).
			WillReturnError(&pq.Error{Code: "42P01"})

		repo, err := NewStateRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.ErrorIs(t, err, ErrSchemaMissing)
		assert.Contains(t, err.Error(), "failed to prepare get statement")
	})
}

func TestStateRepository_Get(t *testing.T) {
	t.Run("returns_stored_value", func(t *testing.T) {
		repo, mock := newMockedRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs(storage.CartKey).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"items":[]}`)))

		value, err := repo.Get(context.Background(), storage.CartKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":[]}`, string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_key_is_not_found", func(t *testing.T) {
		repo, mock := newMockedRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs(storage.SessionKey).
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		_, err := repo.Get(context.Background(), storage.SessionKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("query_error_is_wrapped", func(t *testing.T) {
		repo, mock := newMockedRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs(storage.SessionKey).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(context.Background(), storage.SessionKey)
		require.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrNotFound)
		assert.Contains(t, err.Error(), "failed to get state auth-storage")
	})
}

func TestStateRepository_Set(t *testing.T) {
	repo, mock := newMockedRepository(t)

	payload := []byte(`{"accessToken":"abc","user":null,"isAuthenticated":true}`)
	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs(storage.SessionKey, payload).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), storage.SessionKey, payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_Delete(t *testing.T) {
	repo, mock := newMockedRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs(storage.CartKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), storage.CartKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_SaveAndLoadJSON(t *testing.T) {
	repo, mock := newMockedRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs(storage.CartKey, []byte(`{"items":null}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	type cartDoc struct {
		Items []string `json:"items"`
	}
	require.NoError(t, storage.SaveJSON(context.Background(), repo, storage.CartKey, cartDoc{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(createStateTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
