package runtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestQueryErrorSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
		not  error
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, ErrDuplicateKey, ErrForeignKeyViolation},
		{"foreign key", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation, ErrDuplicateKey},
		{"wrapped unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ErrDuplicateKey, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapQueryError("INSERT INTO tags (name) VALUES ($1)", tt.err)
			assert.ErrorIs(t, err, tt.is)
			assert.NotErrorIs(t, err, tt.not)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(err, &pgErr))
		})
	}
}

func TestQueryErrorPlain(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapQueryError("SELECT 1", cause)

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "SELECT 1")
	assert.NoError(t, WrapQueryError("SELECT 1", nil))
}
