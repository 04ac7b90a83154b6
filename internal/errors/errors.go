// Package errors provides the error taxonomy shared by the table store,
// the script runner and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every failure returned by the store carries exactly one of
// these as its Kind.
var (
	// ErrStorageUnavailable indicates the database file or engine could not be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrTableNotFound indicates the named table does not exist.
	ErrTableNotFound = errors.New("table not found")
	// ErrColumnNotFound indicates the named column does not exist.
	ErrColumnNotFound = errors.New("column not found")
	// ErrColumnExists indicates a column with that name is already present.
	ErrColumnExists = errors.New("column already exists")
	// ErrSchemaMismatch indicates a row referenced a column the table does not have.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrQuery indicates the engine rejected a statement (malformed condition, constraint, ...).
	ErrQuery = errors.New("query error")
	// ErrInvalidInput indicates a request failed validation before reaching the engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a non-table resource (script, export source) was not found.
	ErrNotFound = errors.New("not found")
)

// Error is a failed operation against a table.
type Error struct {
	Kind   error  // one of the sentinels above
	Op     string // operation, e.g. "add row"
	Table  string // table name, if any
	Column string // column name, if any
	Err    error  // underlying driver or system error, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	switch {
	case e.Table != "" && e.Column != "":
		fmt.Fprintf(&b, " (%s.%s)", e.Table, e.Column)
	case e.Table != "":
		fmt.Fprintf(&b, " (%s)", e.Table)
	case e.Column != "":
		fmt.Fprintf(&b, " (%s)", e.Column)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying error to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// New creates an Error of the given kind.
func New(kind error, op, table, column string, err error) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Column: column, Err: err}
}

// NewStorage creates a StorageUnavailable error.
func NewStorage(op, path string, err error) *Error {
	return &Error{Kind: ErrStorageUnavailable, Op: op, Table: path, Err: err}
}

// NewTableNotFound creates a TableNotFound error.
func NewTableNotFound(op, table string) *Error {
	return &Error{Kind: ErrTableNotFound, Op: op, Table: table}
}

// NewQuery wraps an engine error as a QueryError.
func NewQuery(op, table string, err error) *Error {
	return &Error{Kind: ErrQuery, Op: op, Table: table, Err: err}
}

// NewInvalid creates an InvalidInput error with a message.
func NewInvalid(op, message string) *Error {
	return &Error{Kind: ErrInvalidInput, Op: op, Err: errors.New(message)}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the stable API code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	case errors.Is(err, ErrTableNotFound):
		return "TABLE_NOT_FOUND"
	case errors.Is(err, ErrColumnNotFound):
		return "COLUMN_NOT_FOUND"
	case errors.Is(err, ErrColumnExists):
		return "COLUMN_EXISTS"
	case errors.Is(err, ErrSchemaMismatch):
		return "SCHEMA_MISMATCH"
	case errors.Is(err, ErrQuery):
		return "QUERY_ERROR"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
