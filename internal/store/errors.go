package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already in use")
	// ErrUnavailable marks failures to reach the database at all.
	ErrUnavailable = errors.New("store unavailable")
	// ErrValueTooLong means a value exceeded its column width.
	ErrValueTooLong = errors.New("value too long")
)

const (
	uniqueViolation     = "23505"
	stringDataTruncated = "22001"
)

// ConflictError reports a uniqueness violation on a logical field.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// classify maps driver errors onto the store's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if field, ok := uniqueViolationField(err); ok {
		return &ConflictError{Field: field}
	}
	if sqlState(err) == stringDataTruncated {
		return fmt.Errorf("%s: %w", op, ErrValueTooLong)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func uniqueViolationField(err error) (string, bool) {
	var constraint string

	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		if string(pqErr.Code) != uniqueViolation {
			return "", false
		}
		constraint = pqErr.Constraint
	case errors.As(err, &pgErr):
		if pgErr.Code != uniqueViolation {
			return "", false
		}
		constraint = pgErr.ConstraintName
	default:
		return "", false
	}

	switch {
	case strings.Contains(constraint, "email"):
		return "email", true
	case strings.Contains(constraint, "username"):
		return "username", true
	default:
		return "record", true
	}
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
