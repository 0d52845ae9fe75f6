package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Kind classifies a repository error. Workflows branch on the kind, so the
// classification is part of the repository contract, not a logging detail.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindConstraint  Kind = "constraint_violation"
	KindUnavailable Kind = "unavailable"
	KindUnknown     Kind = "unknown"
)

// Error is a classified repository error
type Error struct {
	Kind Kind
	Op   string // e.g. "institutions.Get"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error for the given operation
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Postgres error codes this service branches on. The full class list lives in
// the lib/pq errorMap; only the codes with distinct upstream behavior are
// named here.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgUndefinedTable      = "42P01"
	pgUndefinedFunction   = "42883"
)

// Classify wraps a raw database error into a classified *Error.
// sql.ErrNoRows maps to KindNotFound, unique violations to KindConflict,
// other integrity violations to KindConstraint, connection-class failures to
// KindUnavailable, and everything else to KindUnknown.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewError(op, KindNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return NewError(op, KindConflict, err)
		case pgForeignKeyViolation, pgNotNullViolation, pgCheckViolation:
			return NewError(op, KindConstraint, err)
		}
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection, insufficient resources, operator intervention
			return NewError(op, KindUnavailable, err)
		}
		return NewError(op, KindUnknown, err)
	}

	if isConnectionError(err) {
		return NewError(op, KindUnavailable, err)
	}

	return NewError(op, KindUnknown, err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "driver: bad connection")
}

// KindOf extracts the Kind from an error chain, defaulting to KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether the error chain carries KindNotFound
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsConflict reports whether the error chain carries KindConflict
func IsConflict(err error) bool { return hasKind(err, KindConflict) }

// IsUndefinedTable reports whether the error is Postgres undefined_table.
// Best-effort workflow steps tolerate this so optional tables can be
// provisioned lazily.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUndefinedTable
}

// IsUnsupportedRPC reports whether the error is Postgres undefined_function,
// the signal that a best-effort transaction RPC does not exist on this store.
func IsUnsupportedRPC(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUndefinedFunction
}

func hasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
