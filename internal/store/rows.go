package store

import (
	"context"
	"strings"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
)

// AddRow inserts one row, binding every field in the row's order. An
// empty row inserts a row of defaults.
func (h *Handle) AddRow(ctx context.Context, table string, row db.Row) error {
	const op = "add row"
	if err := h.checkRow(op, table, row); err != nil {
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
	return h.insert(ctx, conn, op, table, cols, row)
}

// AddRows inserts rows one at a time in order. It is not atomic: on
// failure it returns how many rows were added before the failing one.
func (h *Handle) AddRows(ctx context.Context, table string, rows []db.Row) (int, error) {
	const op = "add rows"
	if err := h.checkIdent(op, "table", table); err != nil {
		return 0, err
	}
	conn, err := h.conn(ctx, op)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	cols, err := h.describe(ctx, conn, op, table)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		if err := h.checkRow(op, table, row); err != nil {
			return i, err
		}
		if err := h.insert(ctx, conn, op, table, cols, row); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

// RemoveRow deletes the rows matching condition and returns how many
// were deleted. The condition is SQL placed verbatim after WHERE; a blank
// condition deletes every row.
func (h *Handle) RemoveRow(ctx context.Context, table, condition string) (int64, error) {
	const op = "remove row"
	if err := h.checkIdent(op, "table", table); err != nil {
		return 0, err
	}

	conn, err := h.conn(ctx, op)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if _, err := h.describe(ctx, conn, op, table); err != nil {
		return 0, err
	}

	stmt := "DELETE FROM " + h.d.Quote(table)
	if c := strings.TrimSpace(condition); c != "" {
		stmt += " WHERE " + c
	}

	res, err := conn.ExecContext(ctx, stmt)
	if err != nil {
		return 0, errors.NewQuery(op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewQuery(op, table, err)
	}

	logging.DebugContext(ctx, "rows removed", "table", table, "count", n)
	return n, nil
}

func (h *Handle) checkRow(op, table string, row db.Row) error {
	if err := h.checkIdent(op, "table", table); err != nil {
		return err
	}
	for _, f := range row {
		if err := h.checkIdent(op, "column", f.Name); err != nil {
			return err
		}
	}
	return nil
}

// findColumn looks a column up under the backend's identifier rules.
func (h *Handle) findColumn(cols []db.Column, name string) (db.Column, bool) {
	return db.FindColumnFunc(cols, name, h.d.SameIdent)
}

func (h *Handle) insert(ctx context.Context, q db.Queryer, op, table string, cols []db.Column, row db.Row) error {
	for _, f := range row {
		if _, ok := h.findColumn(cols, f.Name); !ok {
			return errors.New(errors.ErrSchemaMismatch, op, table, f.Name, nil)
		}
	}

	stmt := h.d.InsertDefaults(table)
	if len(row) > 0 {
		stmt = h.db.Rebind("INSERT INTO " + h.d.Quote(table) +
			" (" + db.JoinQuoted(h.d.Quote, row.Names()) + ") VALUES (" +
			db.Placeholders(len(row)) + ")")
	}

	if _, err := q.ExecContext(ctx, stmt, row.Args()...); err != nil {
		return errors.NewQuery(op, table, err)
	}
	return nil
}
