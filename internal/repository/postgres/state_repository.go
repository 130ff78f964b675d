package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"velancis-storefront/internal/storage"
)

const createStateTable = `
		CREATE TABLE IF NOT EXISTS storefront_state (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

// StateRepository stores the gateway's JSON documents in a key/value table.
// It implements storage.Storage.
type StateRepository struct {
	db         *sql.DB
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// Migrate creates the state table if it does not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	return NewTxManager(db).WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createStateTable); err != nil {
			return fmt.Errorf("failed to create storefront_state: %w", err)
		}
		return nil
	})
}

// NewStateRepository creates a StateRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewStateRepository(db *sql.DB) (*StateRepository, error) {
	repo := &StateRepository{db: db}

	var err error
	repo.getStmt, err = db.Prepare(`SELECT value FROM storefront_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", wrapSchemaError(err))
	}

	repo.upsertStmt, err = db.Prepare(`
		INSERT INTO storefront_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", wrapSchemaError(err))
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM storefront_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", wrapSchemaError(err))
	}

	return repo, nil
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

func (r *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.upsertStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("failed to upsert state %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the prepared statements
func (r *StateRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{r.getStmt, r.upsertStmt, r.deleteStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}
