package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
)

// DefaultColumnType is used when AddColumn is given no type.
const DefaultColumnType = "TEXT"

// tempSuffix names the table a column drop rebuilds into.
const tempSuffix = "_temp"

// AddColumn adds a nullable column. The type token is placed verbatim in
// the DDL; an empty type means TEXT. Existing rows read null for it.
func (h *Handle) AddColumn(ctx context.Context, table, column, typ string) error {
	const op = "add column"
	if err := h.checkIdent(op, "table", table); err != nil {
		return err
	}
	if err := h.checkIdent(op, "column", column); err != nil {
		return err
	}
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = DefaultColumnType
	}
	if err := h.checkType(op, typ); err != nil {
		return err
	}

	conn, err := h.conn(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	cols, err := h.describe(ctx, conn, op, table)
	if err != nil {
		return err
	}
	if _, ok := h.findColumn(cols, column); ok {
		return errors.New(errors.ErrColumnExists, op, table, column, nil)
	}

	if _, err := conn.ExecContext(ctx, h.d.AddColumn(table, db.Column{Name: column, Type: typ})); err != nil {
		return errors.NewQuery(op, table, err)
	}

	logging.DatabaseEvent(ctx, "column added", h.d.Name(), table, "column", column, "type", typ)
	return nil
}

// RemoveColumn drops a column by rebuilding the table in one transaction:
// the retained columns are copied into <table>_temp with their key values,
// the auto-increment counter is carried over, and the copy replaces the
// original. Any failure rolls the whole rebuild back.
func (h *Handle) RemoveColumn(ctx context.Context, table, column string) error {
	const op = "remove column"
	if err := h.checkIdent(op, "table", table); err != nil {
		return err
	}
	if err := h.checkIdent(op, "column", column); err != nil {
		return err
	}

	conn, err := h.conn(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.NewQuery(op, table, err)
	}
	defer tx.Rollback()

	cols, err := h.describe(ctx, tx, op, table)
	if err != nil {
		return err
	}

	col, ok := h.findColumn(cols, column)
	if !ok {
		return errors.New(errors.ErrColumnNotFound, op, table, column, nil)
	}
	if col.PrimaryKey {
		return errors.New(errors.ErrInvalidInput, op, table, column, fmt.Errorf("cannot remove a primary key column"))
	}
	if len(cols) == 1 {
		return errors.New(errors.ErrInvalidInput, op, table, column, fmt.Errorf("cannot remove the only column"))
	}

	retained := make([]db.Column, 0, len(cols)-1)
	for _, c := range cols {
		if c.Name != col.Name {
			retained = append(retained, c)
		}
	}

	temp := table + tempSuffix
	existing, err := h.d.DescribeTable(ctx, tx, temp)
	if err != nil {
		return errors.NewQuery(op, table, err)
	}
	if len(existing) > 0 {
		return errors.NewQuery(op, table, fmt.Errorf("table %s already exists", temp))
	}

	keys := db.KeyColumns(retained)
	identity := len(keys) == 1 && isIntegerType(keys[0].Type)

	defs := make([]string, 0, len(retained)+1)
	for _, c := range retained {
		if identity && c.PrimaryKey {
			defs = append(defs, h.d.KeyColumn(c.Name))
			continue
		}
		defs = append(defs, h.d.ColumnDef(c))
	}
	if !identity && len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+db.JoinQuoted(h.d.Quote, db.ColumnNames(keys))+")")
	}

	stmts := []string{h.d.CreateTable(temp, defs)}
	stmts = append(stmts, h.d.CopyRows(table, temp, db.ColumnNames(retained), identity)...)
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.NewQuery(op, table, err)
		}
	}

	if identity {
		if err := h.d.CarrySequence(ctx, tx, table, temp, keys[0].Name); err != nil {
			return errors.NewQuery(op, table, err)
		}
	}

	for _, stmt := range []string{
		"DROP TABLE " + h.d.Quote(table),
		h.d.RenameTable(temp, table),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.NewQuery(op, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewQuery(op, table, err)
	}

	logging.DatabaseEvent(ctx, "column removed", h.d.Name(), table, "column", column, "retained", len(retained))
	return nil
}
