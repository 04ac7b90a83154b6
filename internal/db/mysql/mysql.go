package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bgunnarsson/tabled/internal/db"
)

// Dialect is the MySQL/MariaDB backend. DDL commits implicitly, so a
// column rebuild is not atomic here.
type Dialect struct{}

func New() *Dialect { return &Dialect{} }

var _ db.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string       { return "mysql" }
func (d *Dialect) DriverName() string { return "mysql" }

func (d *Dialect) Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty mysql DSN")
	}

	sqldb, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(4)
	sqldb.SetMaxIdleConns(4)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	return sqldb, nil
}

func (d *Dialect) NeedsProvisioning(string) (bool, error) { return true, nil }

func (d *Dialect) Setup(context.Context, db.Queryer) error { return nil }

func (d *Dialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *Dialect) KeyColumn(name string) string {
	return d.Quote(name) + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
}

func (d *Dialect) ColumnDef(col db.Column) string {
	return db.ColumnDefSQL(d.Quote, col)
}

// SameIdent folds case: MySQL column names are case insensitive.
func (d *Dialect) SameIdent(a, b string) bool { return strings.EqualFold(a, b) }

// ScanValue keeps binary columns as blobs. The driver returns every
// character column as []byte, so other valid UTF-8 bytes are text.
func (d *Dialect) ScanValue(col db.Column, x any) db.Value {
	t := strings.ToLower(col.Type)
	if strings.Contains(t, "blob") || strings.Contains(t, "binary") {
		return db.ValueOf(x)
	}
	return db.TextBytesValueOf(x)
}

func (d *Dialect) CreateTable(table string, defs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

func (d *Dialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.Quote(table) + " () VALUES ()"
}

func (d *Dialect) AddColumn(table string, col db.Column) string {
	return "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + d.ColumnDef(col)
}

func (d *Dialect) RenameTable(from, to string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(from), d.Quote(to))
}

func (d *Dialect) CopyRows(from, to string, cols []string, _ bool) []string {
	return []string{db.CopyRowsSQL(d.Quote, from, to, cols)}
}

// CarrySequence sets AUTO_INCREMENT on to. information_schema may serve a
// cached counter, so the larger of it and MAX(key)+1 wins.
func (d *Dialect) CarrySequence(ctx context.Context, q db.Queryer, from, to, key string) error {
	next, err := scanInt(ctx, q, `
SELECT COALESCE(AUTO_INCREMENT, 1)
FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_name = ?`, from)
	if err != nil {
		return err
	}
	high, err := scanInt(ctx, q, fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", d.Quote(key), d.Quote(from)))
	if err != nil {
		return err
	}
	if high > next {
		next = high
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", d.Quote(to), next))
	return err
}

func scanInt(ctx context.Context, q db.Queryer, stmt string, args ...any) (int64, error) {
	rows, err := q.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n sql.NullInt64
	for rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n.Int64, rows.Err()
}

func (d *Dialect) ListTables(ctx context.Context, q db.Queryer) ([]string, error) {
	const stmt = `
SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema = DATABASE()
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

func (d *Dialect) DescribeTable(ctx context.Context, q db.Queryer, table string) ([]db.Column, error) {
	const stmt = `
SELECT column_name, column_type, is_nullable, column_default, column_key, extra
FROM information_schema.columns
WHERE table_schema = DATABASE()
  AND table_name = ?
ORDER BY ordinal_position;
`
	rows, err := q.QueryxContext(ctx, stmt, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []db.Column
	for rows.Next() {
		var name, ctype, nullable, key, extra string
		var dflt sql.NullString
		if err := rows.Scan(&name, &ctype, &nullable, &dflt, &key, &extra); err != nil {
			return nil, err
		}
		col := db.Column{
			Name:       name,
			Type:       ctype,
			NotNull:    nullable == "NO",
			PrimaryKey: key == "PRI",
		}
		if dflt.Valid {
			def := defaultExpr(dflt.String, extra)
			col.Default = &def
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// defaultExpr turns an information_schema default back into DDL. Literal
// defaults are reported unquoted; expression defaults carry
// DEFAULT_GENERATED in extra.
func defaultExpr(raw, extra string) string {
	if strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED") {
		return "(" + raw + ")"
	}
	return "'" + strings.ReplaceAll(raw, "'", "''") + "'"
}
