package app

import (
	"context"
	"io"

	"github.com/bgunnarsson/tabled/internal/print"
	"github.com/bgunnarsson/tabled/internal/store"
)

// ShowOptions controls RunShow output.
type ShowOptions struct {
	JSON     bool
	MaxWidth int
}

// RunShow prints a table. An empty table name shows the default table.
func RunShow(ctx context.Context, w io.Writer, h *store.Handle, table string, opts ShowOptions) error {
	if table == "" {
		table = h.DefaultTable()
	}

	rows, err := h.ReadTable(ctx, table)
	if err != nil {
		return err
	}

	if opts.JSON {
		return print.RenderJSON(w, rows)
	}
	print.RenderTable(w, rows, print.Options{MaxWidth: opts.MaxWidth})
	return nil
}

// RunTables prints the table names, one per line.
func RunTables(ctx context.Context, w io.Writer, h *store.Handle) error {
	tables, err := h.ListTables(ctx)
	if err != nil {
		return err
	}
	print.RenderList(w, tables)
	return nil
}
