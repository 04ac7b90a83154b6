// Package store is the table store: a handle on one database plus the
// dynamic row, schema and read operations over caller-named tables.
//
// Values are always bound as parameters and identifiers are always
// quoted. Conditions and column type tokens are interpolated verbatim
// and must come from a trusted caller.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
)

const (
	DefaultDSN   = "data.db"
	DefaultTable = "generic_table"

	pingTimeout = 5 * time.Second
)

// Config selects the database and the table provisioned on first use.
type Config struct {
	// DSN is a file path for SQLite, a connection string otherwise.
	DSN          string
	DefaultTable string
	Profile      Profile
	// StrictIdentifiers rejects table and column names that are not plain
	// identifiers, and type tokens that do not look like SQL types.
	StrictIdentifiers bool
}

func (c Config) withDefaults() Config {
	if c.DSN == "" {
		c.DSN = DefaultDSN
	}
	if c.DefaultTable == "" {
		c.DefaultTable = DefaultTable
	}
	if c.Profile == "" {
		c.Profile = ProfileGeneric
	}
	return c
}

// Handle is an open table store. It is safe for concurrent use; every
// operation takes its own connection from the pool.
type Handle struct {
	d   db.Dialect
	db  *sqlx.DB
	cfg Config
}

// Open opens the database described by cfg, creating the default table
// when the database is new. A failure to open, ping or provision is
// StorageUnavailable.
func Open(ctx context.Context, d db.Dialect, cfg Config) (*Handle, error) {
	const op = "open"
	cfg = cfg.withDefaults()

	h := &Handle{d: d, cfg: cfg}
	if err := h.checkIdent(op, "table", cfg.DefaultTable); err != nil {
		return nil, err
	}
	cols, err := cfg.Profile.Columns()
	if err != nil {
		return nil, err
	}

	provision, err := d.NeedsProvisioning(cfg.DSN)
	if err != nil {
		return nil, errors.NewStorage(op, h.location(), err)
	}

	sqldb, err := d.Open(cfg.DSN)
	if err != nil {
		return nil, errors.NewStorage(op, h.location(), err)
	}
	h.db = sqlx.NewDb(sqldb, d.DriverName())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.db.PingContext(pingCtx); err != nil {
		h.db.Close()
		return nil, errors.NewStorage(op, h.location(), err)
	}

	if !provision {
		logging.DatabaseEvent(ctx, "opened", d.Name(), cfg.DefaultTable, "location", h.location())
		return h, nil
	}

	if err := h.provision(ctx, cols); err != nil {
		h.db.Close()
		return nil, errors.NewStorage(op, h.location(), err)
	}
	logging.DatabaseEvent(ctx, "initialized", d.Name(), cfg.DefaultTable,
		"location", h.location(), "profile", string(cfg.Profile))
	return h, nil
}

func (h *Handle) provision(ctx context.Context, cols []db.Column) error {
	conn, err := h.conn(ctx, "provision")
	if err != nil {
		return err
	}
	defer conn.Close()

	defs := []string{h.d.KeyColumn("id")}
	for _, c := range cols {
		defs = append(defs, h.d.ColumnDef(c))
	}
	_, err = conn.ExecContext(ctx, h.d.CreateTable(h.cfg.DefaultTable, defs))
	return err
}

// Close releases the pool.
func (h *Handle) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Dialect returns the backend the handle was opened with.
func (h *Handle) Dialect() db.Dialect { return h.d }

// DefaultTable is the table provisioned at open and used when a caller
// names none.
func (h *Handle) DefaultTable() string { return h.cfg.DefaultTable }

// location names the database in errors and logs without leaking
// server credentials.
func (h *Handle) location() string {
	if h.d.Name() == "sqlite" {
		return h.cfg.DSN
	}
	return h.d.Name()
}

// conn takes a connection from the pool and applies session settings.
// The caller closes it.
func (h *Handle) conn(ctx context.Context, op string) (*sqlx.Conn, error) {
	c, err := h.db.Connx(ctx)
	if err != nil {
		return nil, errors.NewStorage(op, h.location(), err)
	}
	if err := h.d.Setup(ctx, c); err != nil {
		c.Close()
		return nil, errors.NewStorage(op, h.location(), err)
	}
	return c, nil
}

// describe returns the columns of table, or TableNotFound.
func (h *Handle) describe(ctx context.Context, q db.Queryer, op, table string) ([]db.Column, error) {
	cols, err := h.d.DescribeTable(ctx, q, table)
	if err != nil {
		return nil, errors.NewQuery(op, table, err)
	}
	if len(cols) == 0 {
		return nil, errors.NewTableNotFound(op, table)
	}
	return cols, nil
}

func isIntegerType(typ string) bool {
	return strings.Contains(strings.ToUpper(typ), "INT")
}
