package datalayer

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique constraint is violated, e.g.
	// by a duplicate client-generated id
	ErrConflict = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a relationship references a
	// missing record
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrRelationshipNotNullable is returned when clearing a to-one
	// relationship that the schema marks as required
	ErrRelationshipNotNullable = errors.New("relationship is not nullable")

	// ErrLinkageCardinality is returned when to-one linkage is written to
	// a to-many relationship or vice versa
	ErrLinkageCardinality = errors.New("linkage cardinality does not match relationship")

	// ErrTransactionUnsupported is returned at configuration time when a
	// backend without transactions is wired to the atomic coordinator
	ErrTransactionUnsupported = errors.New("data layer does not support transactions")
)

// ConvertDBError maps database-specific errors onto the package sentinels
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
