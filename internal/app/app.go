// Package app wires a driver name and DSN to a table store and runs the
// terminal front ends over it.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/db/mssql"
	"github.com/bgunnarsson/tabled/internal/db/mysql"
	"github.com/bgunnarsson/tabled/internal/db/postgres"
	"github.com/bgunnarsson/tabled/internal/db/sqlite"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/store"
	"github.com/bgunnarsson/tabled/internal/ui"
)

type Driver string

const (
	DriverSqlite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMssql    Driver = "mssql"
	DriverMysql    Driver = "mysql"
)

// Drivers lists the supported drivers.
func Drivers() []Driver {
	return []Driver{DriverSqlite, DriverPostgres, DriverMysql, DriverMssql}
}

// Dialect is the central factory from driver name to backend.
func Dialect(driver Driver, dsn string) (db.Dialect, error) {
	switch Driver(strings.ToLower(string(driver))) {
	case "", DriverSqlite:
		return sqlite.New(), nil
	case DriverPostgres, "pgx":
		return postgres.New(), nil
	case DriverMssql, "sqlserver":
		return mssql.New(dsn), nil
	case DriverMysql:
		return mysql.New(), nil
	default:
		return nil, errors.NewInvalid("open", fmt.Sprintf("unsupported driver %q", driver))
	}
}

// Open opens the store for driver with cfg.
func Open(ctx context.Context, driver Driver, cfg store.Config) (*store.Handle, error) {
	d, err := Dialect(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, d, cfg)
}

// RunBrowse runs the terminal browser until the user quits.
func RunBrowse(ctx context.Context, h *store.Handle) error {
	return ui.Run(ctx, h, h.Dialect().Name())
}
