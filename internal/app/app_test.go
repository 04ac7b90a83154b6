package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/store"
)

func TestDialect(t *testing.T) {
	tests := []struct {
		driver Driver
		dsn    string
		name   string
		sqlDrv string
	}{
		{"", "", "sqlite", ""},
		{DriverSqlite, "", "sqlite", ""},
		{DriverPostgres, "", "postgres", "pgx"},
		{"PGX", "", "postgres", "pgx"},
		{DriverMysql, "", "mysql", "mysql"},
		{DriverMssql, "sqlserver://h", "mssql", "sqlserver"},
		{DriverMssql, "sqlserver://h?fedauth=ActiveDirectoryDefault", "mssql", "azuresql"},
	}
	for _, tt := range tests {
		t.Run(string(tt.driver)+tt.dsn, func(t *testing.T) {
			d, err := Dialect(tt.driver, tt.dsn)
			if err != nil {
				t.Fatal(err)
			}
			if d.Name() != tt.name {
				t.Errorf("Name = %q, want %q", d.Name(), tt.name)
			}
			if tt.sqlDrv != "" && d.DriverName() != tt.sqlDrv {
				t.Errorf("DriverName = %q, want %q", d.DriverName(), tt.sqlDrv)
			}
		})
	}

	if _, err := Dialect("oracle", ""); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown driver error = %v", err)
	}
}

func TestRunShowAndTables(t *testing.T) {
	ctx := context.Background()
	h, err := Open(ctx, DriverSqlite, store.Config{DSN: filepath.Join(t.TempDir(), "data.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	if err := h.AddRow(ctx, "", db.NewRow("title", "hello")); err == nil {
		t.Fatal("empty table name accepted")
	}
	if err := h.AddRow(ctx, h.DefaultTable(), db.NewRow("title", "hello")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := RunTables(ctx, &buf, h); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "generic_table\n" {
		t.Errorf("tables = %q", buf.String())
	}

	buf.Reset()
	if err := RunShow(ctx, &buf, h, "", ShowOptions{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "| 1  | hello |") {
		t.Errorf("show:\n%s", buf.String())
	}

	buf.Reset()
	if err := RunShow(ctx, &buf, h, "generic_table", ShowOptions{JSON: true}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"title": "hello"`) {
		t.Errorf("show --json:\n%s", buf.String())
	}

	if err := RunShow(ctx, &buf, h, "missing", ShowOptions{}); !errors.Is(err, errors.ErrTableNotFound) {
		t.Errorf("missing table error = %v", err)
	}
}
