package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/bgunnarsson/tabled/internal/db"
)

// Dialect is the SQLite backend. The DSN is a file path, optionally
// written as a file: URI with query parameters.
type Dialect struct{}

// New returns the SQLite dialect.
func New() *Dialect { return &Dialect{} }

// Info describes the compiled-in driver.
type Info struct {
	DriverName    string
	DriverType    string
	DriverPackage string
}

// GetInfo returns which SQLite driver this binary was built with.
func GetInfo() Info {
	return Info{
		DriverName:    driverName,
		DriverType:    driverType,
		DriverPackage: driverPackage,
	}
}

var _ db.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string       { return "sqlite" }
func (d *Dialect) DriverName() string { return driverName }

func (d *Dialect) Open(dsn string) (*sql.DB, error) {
	sqldb, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; callers queue on the pool instead of SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	return sqldb, nil
}

// FilePath strips a file: prefix and query string from dsn.
func FilePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func (d *Dialect) NeedsProvisioning(dsn string) (bool, error) {
	p := FilePath(dsn)
	if p == "" || p == ":memory:" {
		return true, nil
	}
	_, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (d *Dialect) Setup(ctx context.Context, q db.Queryer) error {
	for _, stmt := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dialect) Quote(ident string) string { return db.QuoteDouble(ident) }

func (d *Dialect) KeyColumn(name string) string {
	return d.Quote(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

// ColumnDef wraps the default in parentheses. PRAGMA table_info reports
// expression defaults such as 1+1 or datetime('now') without them, and
// SQLite only accepts a bare literal after DEFAULT.
func (d *Dialect) ColumnDef(col db.Column) string {
	if col.Default != nil {
		expr := parenthesize(*col.Default)
		col.Default = &expr
	}
	return db.ColumnDefSQL(d.Quote, col)
}

// SameIdent compares names the way SQLite resolves them: ASCII case
// insensitively.
func (d *Dialect) SameIdent(a, b string) bool { return strings.EqualFold(a, b) }

// ScanValue treats []byte as a BLOB; both drivers return TEXT as string.
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

// CarrySequence copies the sqlite_sequence entry. Tables without
// AUTOINCREMENT have no entry and nothing is carried.
func (d *Dialect) CarrySequence(ctx context.Context, q db.Queryer, from, to, _ string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = ?`, to); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO sqlite_sequence (name, seq) SELECT ?, seq FROM sqlite_sequence WHERE name = ?`,
		to, from)
	return err
}

func (d *Dialect) ListTables(ctx context.Context, q db.Queryer) ([]string, error) {
	// sqlite_master works on every version; internal sqlite_% objects are hidden.
	const stmt = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY lower(name);
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
	return out, rows.Err()
}

// DescribeTable returns the columns in declaration order, or an empty
// slice when the table does not exist.
func (d *Dialect) DescribeTable(ctx context.Context, q db.Queryer, table string) ([]db.Column, error) {
	stmt := fmt.Sprintf("PRAGMA table_info(%s);", d.Quote(table))
	rows, err := q.QueryxContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []db.Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		col := db.Column{
			Name:       name,
			Type:       ctype,
			NotNull:    notnull != 0,
			PrimaryKey: pk > 0,
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// parenthesize wraps expr in parentheses unless a single pair already
// encloses all of it.
func parenthesize(expr string) string {
	expr = strings.TrimSpace(expr)
	if enclosed(expr) {
		return expr
	}
	return "(" + expr + ")"
}

func enclosed(expr string) bool {
	if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
		return false
	}
	depth := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return false
			}
		}
	}
	return depth == 0
}
