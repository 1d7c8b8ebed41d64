package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"serialization failure", "40001", ErrConflict},
		{"deadlock detected", "40P01", ErrConflict},
		{"unique violation", "23505", ErrConflict},
		{"not null violation", "23502", ErrValidation},
		{"foreign key violation", "23503", ErrValidation},
		{"check violation", "23514", ErrValidation},
		{"string too long", "22001", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyPgError(&pgconn.PgError{Code: tt.code})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClassifyPgErrorUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("create failed: %w", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, classifyPgError(wrapped), ErrConflict)
}

func TestClassifyPgErrorPassthrough(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Same(t, plain, classifyPgError(plain))

	unknown := &pgconn.PgError{Code: "42P01"} // undefined_table: neither conflict nor validation
	got := classifyPgError(unknown)
	assert.NotErrorIs(t, got, ErrConflict)
	assert.NotErrorIs(t, got, ErrValidation)
}
