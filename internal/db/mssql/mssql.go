package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/azuread"

	"github.com/bgunnarsson/tabled/internal/db"
)

// Dialect is the SQL Server / Azure SQL backend. Tables live in the
// login's default schema.
type Dialect struct {
	driver string
}

// New picks the driver for dsn. If the DSN contains "fedauth=", we use
// the Azure AD driver (azuresql) so things like ActiveDirectoryInteractive
// / AzCli work.
func New(dsn string) *Dialect {
	driver := "sqlserver"
	if strings.Contains(strings.ToLower(dsn), "fedauth=") {
		driver = azuread.DriverName // "azuresql"
	}
	return &Dialect{driver: driver}
}

var _ db.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string       { return "mssql" }
func (d *Dialect) DriverName() string { return d.driver }

func (d *Dialect) Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty mssql DSN")
	}

	sqldb, err := sql.Open(d.driver, dsn)
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
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// literal renders s as an N'' string literal.
func literal(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d *Dialect) KeyColumn(name string) string {
	return d.Quote(name) + " BIGINT IDENTITY(1,1) PRIMARY KEY"
}

func (d *Dialect) ColumnDef(col db.Column) string {
	return db.ColumnDefSQL(d.Quote, col)
}

// SameIdent folds case, matching the default case-insensitive collations.
func (d *Dialect) SameIdent(a, b string) bool { return strings.EqualFold(a, b) }

func (d *Dialect) ScanValue(_ db.Column, x any) db.Value { return db.ValueOf(x) }

func (d *Dialect) CreateTable(table string, defs []string) string {
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (%s)",
		literal(d.Quote(table)), d.Quote(table), strings.Join(defs, ", "))
}

func (d *Dialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.Quote(table) + " DEFAULT VALUES"
}

func (d *Dialect) AddColumn(table string, col db.Column) string {
	return "ALTER TABLE " + d.Quote(table) + " ADD " + d.ColumnDef(col)
}

// RenameTable uses sp_rename, which takes the new name unquoted.
func (d *Dialect) RenameTable(from, to string) string {
	return fmt.Sprintf("EXEC sp_rename %s, %s", literal(d.Quote(from)), literal(to))
}

func (d *Dialect) CopyRows(from, to string, cols []string, identity bool) []string {
	copyStmt := db.CopyRowsSQL(d.Quote, from, to, cols)
	if !identity {
		return []string{copyStmt}
	}
	return []string{
		"SET IDENTITY_INSERT " + d.Quote(to) + " ON",
		copyStmt,
		"SET IDENTITY_INSERT " + d.Quote(to) + " OFF",
	}
}

// CarrySequence reseeds the identity of to with the current identity of from.
func (d *Dialect) CarrySequence(ctx context.Context, q db.Queryer, from, to, _ string) error {
	rows, err := q.QueryxContext(ctx, `SELECT CAST(IDENT_CURRENT(@p1) AS BIGINT)`, d.Quote(from))
	if err != nil {
		return err
	}
	var current sql.NullInt64
	for rows.Next() {
		if err := rows.Scan(&current); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !current.Valid {
		return nil
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf("DBCC CHECKIDENT (%s, RESEED, %d) WITH NO_INFOMSGS",
		literal(d.Quote(to)), current.Int64))
	return err
}

func (d *Dialect) ListTables(ctx context.Context, q db.Queryer) ([]string, error) {
	const stmt = `
SELECT TABLE_NAME
FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE'
  AND TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY TABLE_NAME;
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
SELECT c.COLUMN_NAME,
       c.DATA_TYPE,
       c.CHARACTER_MAXIMUM_LENGTH,
       c.NUMERIC_PRECISION,
       c.NUMERIC_SCALE,
       c.IS_NULLABLE,
       c.COLUMN_DEFAULT,
       CASE WHEN EXISTS (
           SELECT 1
           FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
           JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
             ON k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
            AND k.TABLE_SCHEMA = tc.TABLE_SCHEMA
            AND k.TABLE_NAME = tc.TABLE_NAME
           WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
             AND tc.TABLE_SCHEMA = c.TABLE_SCHEMA
             AND tc.TABLE_NAME = c.TABLE_NAME
             AND k.COLUMN_NAME = c.COLUMN_NAME
       ) THEN 1 ELSE 0 END
FROM INFORMATION_SCHEMA.COLUMNS c
WHERE c.TABLE_SCHEMA = SCHEMA_NAME() AND c.TABLE_NAME = @p1
ORDER BY c.ORDINAL_POSITION;
`
	rows, err := q.QueryxContext(ctx, stmt, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []db.Column
	for rows.Next() {
		var name, dataType, nullable string
		var length, precision, scale sql.NullInt64
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&name, &dataType, &length, &precision, &scale, &nullable, &dflt, &pk); err != nil {
			return nil, err
		}
		col := db.Column{
			Name:       name,
			Type:       typeName(dataType, length, precision, scale),
			NotNull:    nullable == "NO",
			PrimaryKey: pk == 1,
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

// typeName rebuilds a declarable type from INFORMATION_SCHEMA parts.
func typeName(dataType string, length, precision, scale sql.NullInt64) string {
	switch strings.ToLower(dataType) {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if !length.Valid {
			return dataType
		}
		if length.Int64 == -1 {
			return dataType + "(max)"
		}
		return fmt.Sprintf("%s(%d)", dataType, length.Int64)
	case "decimal", "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
	}
	return dataType
}
