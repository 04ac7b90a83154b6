package store

import (
	"context"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
)

// ReadTable returns every row of table with its columns. Rows come back
// in key order when the table has a single-column primary key.
func (h *Handle) ReadTable(ctx context.Context, table string) (*db.Rows, error) {
	const op = "read table"
	if err := h.checkIdent(op, "table", table); err != nil {
		return nil, err
	}

	conn, err := h.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cols, err := h.describe(ctx, conn, op, table)
	if err != nil {
		return nil, err
	}
	names := db.ColumnNames(cols)

	stmt := "SELECT " + db.JoinQuoted(h.d.Quote, names) + " FROM " + h.d.Quote(table)
	if keys := db.KeyColumns(cols); len(keys) == 1 {
		stmt += " ORDER BY " + h.d.Quote(keys[0].Name)
	}

	rows, err := conn.QueryxContext(ctx, stmt)
	if err != nil {
		return nil, errors.NewQuery(op, table, err)
	}
	defer rows.Close()

	out := &db.Rows{Columns: cols, Data: []db.Row{}}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, errors.NewQuery(op, table, err)
		}
		row := make(db.Row, len(cols))
		for i, c := range cols {
			row[i] = db.Field{Name: c.Name, Value: h.d.ScanValue(c, vals[i])}
		}
		out.Data = append(out.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQuery(op, table, err)
	}
	return out, nil
}

// ListTables returns the user tables of the database.
func (h *Handle) ListTables(ctx context.Context) ([]string, error) {
	const op = "list tables"
	conn, err := h.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tables, err := h.d.ListTables(ctx, conn)
	if err != nil {
		return nil, errors.NewQuery(op, "", err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

// DescribeTable returns the columns of table.
func (h *Handle) DescribeTable(ctx context.Context, table string) ([]db.Column, error) {
	const op = "describe table"
	if err := h.checkIdent(op, "table", table); err != nil {
		return nil, err
	}
	conn, err := h.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return h.describe(ctx, conn, op, table)
}
