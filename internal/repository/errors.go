package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Gateway error taxonomy. Callers classify with errors.Is; the wrapped
// cause is preserved for logging.
var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("concurrent modification conflict")
	ErrValidation = errors.New("payload rejected by store")
)

// classifyPgError maps Postgres SQLSTATE codes onto the gateway
// taxonomy. The postgres driver is pgx-based, so database errors
// surface as *pgconn.PgError. Serialization failures, deadlocks, and
// unique violations are concurrent-writer collisions; constraint
// violations mean the payload itself is bad.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case "23502", "23503", "23514", "22001": // not_null, foreign_key, check, string_data_right_truncation
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return err
}
