package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pqUndefinedTable = "42P01"

var ErrSchemaMissing = errors.New("storefront_state table does not exist, run the migration")

// IsUndefinedTable checks if an error is a PostgreSQL undefined_table error
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUndefinedTable
}

func wrapSchemaError(err error) error {
	if IsUndefinedTable(err) {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return err
}
