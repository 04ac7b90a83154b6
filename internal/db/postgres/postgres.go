package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx stdlib driver

	"github.com/bgunnarsson/tabled/internal/db"
)

// Dialect is the PostgreSQL backend over pgx. Tables live in the
// connection's current schema.
type Dialect struct{}

func New() *Dialect { return &Dialect{} }

var _ db.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string       { return "postgres" }
func (d *Dialect) DriverName() string { return "pgx" }

func (d *Dialect) Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres DSN")
	}

	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(4)
	sqldb.SetMaxIdleConns(4)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	return sqldb, nil
}

// NeedsProvisioning is always true; the CREATE statement is idempotent.
func (d *Dialect) NeedsProvisioning(string) (bool, error) { return true, nil }

func (d *Dialect) Setup(context.Context, db.Queryer) error { return nil }

func (d *Dialect) Quote(ident string) string { return db.QuoteDouble(ident) }

func (d *Dialect) KeyColumn(name string) string {
	return d.Quote(name) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (d *Dialect) ColumnDef(col db.Column) string {
	return db.ColumnDefSQL(d.Quote, col)
}

// SameIdent is exact: quoted identifiers are case sensitive.
func (d *Dialect) SameIdent(a, b string) bool { return a == b }

func (d *Dialect) ScanValue(_ db.Column, x any) db.Value { return db.ValueOf(x) }

func (d *Dialect) CreateTable(table string, defs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

func (d *Dialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.Quote(table) + " DEFAULT VALUES"
}

func (d *Dialect) AddColumn(table string, col db.Column) string {
	return "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + d.ColumnDef(col)
}

func (d *Dialect) RenameTable(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to))
}

func (d *Dialect) CopyRows(from, to string, cols []string, _ bool) []string {
	return []string{db.CopyRowsSQL(d.Quote, from, to, cols)}
}

// CarrySequence sets the identity sequence of to to the last value handed
// out by from. A sequence that was never used is left alone.
func (d *Dialect) CarrySequence(ctx context.Context, q db.Queryer, from, to, key string) error {
	rows, err := q.QueryxContext(ctx,
		`SELECT pg_sequence_last_value(pg_get_serial_sequence($1, $2)::regclass)`,
		d.Quote(from), key)
	if err != nil {
		return err
	}
	var last sql.NullInt64
	for rows.Next() {
		if err := rows.Scan(&last); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !last.Valid {
		return nil
	}

	_, err = q.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence($1, $2)::regclass, $3)`,
		d.Quote(to), key, last.Int64)
	return err
}

func (d *Dialect) ListTables(ctx context.Context, q db.Queryer) ([]string, error) {
	const stmt = `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema = current_schema()
ORDER BY table_name;
`
	rows, err := q.QueryxContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DescribeTable returns the columns of table in the current schema.
func (d *Dialect) DescribeTable(ctx context.Context, q db.Queryer, table string) ([]db.Column, error) {
	const stmt = `
SELECT c.column_name,
       format_type(a.atttypid, a.atttypmod),
       c.is_nullable = 'NO',
       c.column_default,
       EXISTS (
           SELECT 1
           FROM information_schema.table_constraints tc
           JOIN information_schema.key_column_usage k
             ON k.constraint_name = tc.constraint_name
            AND k.table_schema = tc.table_schema
            AND k.table_name = tc.table_name
           WHERE tc.constraint_type = 'PRIMARY KEY'
             AND tc.table_schema = c.table_schema
             AND tc.table_name = c.table_name
             AND k.column_name = c.column_name
       )
FROM information_schema.columns c
JOIN pg_catalog.pg_attribute a
  ON a.attrelid = format('%I.%I', c.table_schema, c.table_name)::regclass
 AND a.attname = c.column_name
WHERE c.table_schema = current_schema()
  AND c.table_name = $1
ORDER BY c.ordinal_position;
`
	rows, err := q.QueryxContext(ctx, stmt, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []db.Column
	for rows.Next() {
		var col db.Column
		var dflt sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &col.NotNull, &dflt, &col.PrimaryKey); err != nil {
			return nil, err
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}
