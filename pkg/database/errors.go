package database

import (
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// pq error codes this layer cares about
const (
	codeCheckViolation      = "23514"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// MapPQError converts a PostgreSQL error to an AppError.
// Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	case codeCheckViolation:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)
	case codeUniqueViolation:
		return errors.Conflict("a record with these values already exists")
	case codeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")
	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})
	default:
		return nil
	}
}

// IsNoRows reports whether the error is sql.ErrNoRows
func IsNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// IsRetryable reports whether the error is a transient concurrency
// conflict (serialization failure or deadlock) that a caller should
// retry rather than surface as a business error.
func IsRetryable(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == codeSerializationFail || pqErr.Code == codeDeadlockDetected
}
