package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUndefinedTable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"undefined_table", &pq.Error{Code: "42P01"}, true},
		{"wrapped_undefined_table", fmt.Errorf("prepare: %w", &pq.Error{Code: "42P01"}), true},
		{"unique_violation", &pq.Error{Code: "23505"}, false},
		{"plain_error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUndefinedTable(tt.err))
		})
	}
}

func TestWrapSchemaError(t *testing.T) {
	err := wrapSchemaError(&pq.Error{Code: "42P01", Message: `relation "storefront_state" does not exist`})
	assert.ErrorIs(t, err, ErrSchemaMissing)

	other := errors.New("syntax error")
	assert.Equal(t, other, wrapSchemaError(other))
}
