package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Column describes one column of a table as reported by the backend.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null,omitempty"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key,omitempty"`
}

// Rows is the result of a full table read.
type Rows struct {
	Columns []Column
	Data    []Row
}

// Records returns the rows, never nil.
func (r *Rows) Records() []Row {
	if r == nil || r.Data == nil {
		return []Row{}
	}
	return r.Data
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// FindColumn returns the column called name.
func FindColumn(cols []Column, name string) (Column, bool) {
	return FindColumnFunc(cols, name, func(a, b string) bool { return a == b })
}

// FindColumnFunc returns the first column whose name matches name under same.
func FindColumnFunc(cols []Column, name string, same func(a, b string) bool) (Column, bool) {
	for _, c := range cols {
		if same(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// KeyColumns returns the primary key columns of cols in order.
func KeyColumns(cols []Column) []Column {
	var out []Column
	for _, c := range cols {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Queryer is the subset of *sqlx.Conn and *sqlx.Tx the dialects need.
type Queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Dialect is everything backend specific about the table store: how to
// open the database, how to spell identifiers and DDL, and how to
// introspect tables. Identifier arguments are plain names; the dialect
// quotes them.
type Dialect interface {
	// Name is the short backend name ("sqlite", "postgres", ...).
	Name() string
	// DriverName is the database/sql driver the dialect registers.
	DriverName() string
	// Open opens a pool for dsn with backend-appropriate limits.
	Open(dsn string) (*sql.DB, error)
	// NeedsProvisioning reports whether the default table should be
	// created for dsn. File-backed backends answer true only when the file
	// does not exist yet.
	NeedsProvisioning(dsn string) (bool, error)
	// Setup runs per-connection session statements.
	Setup(ctx context.Context, q Queryer) error

	Quote(ident string) string
	// SameIdent reports whether two unquoted names refer to the same
	// object once quoted.
	SameIdent(a, b string) bool
	// ScanValue converts a scanned driver value of col.
	ScanValue(col Column, x any) Value
	// KeyColumn is the definition of an auto-incrementing integer primary key.
	KeyColumn(name string) string
	// ColumnDef renders a non-key column definition.
	ColumnDef(col Column) string
	// CreateTable returns an idempotent CREATE TABLE statement.
	CreateTable(table string, defs []string) string
	// InsertDefaults returns an INSERT that adds a row of default values.
	InsertDefaults(table string) string
	// AddColumn returns ALTER TABLE ... ADD for col.
	AddColumn(table string, col Column) string
	RenameTable(from, to string) string
	// CopyRows returns the statements that copy cols from one table into
	// another, keeping key values. identity is set when the target key is
	// the dialect's auto-increment column.
	CopyRows(from, to string, cols []string, identity bool) []string
	// CarrySequence moves the auto-increment high-water mark of key from
	// one table to another so ids are never reused.
	CarrySequence(ctx context.Context, q Queryer, from, to, key string) error

	ListTables(ctx context.Context, q Queryer) ([]string, error)
	DescribeTable(ctx context.Context, q Queryer, table string) ([]Column, error)
}
