// Package print renders table reads for the terminal.
package print

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/bgunnarsson/tabled/internal/db"
)

type Options struct {
	MaxWidth int // max display width of each column, 0 = 40
}

// RenderTable writes rows as an ASCII grid. Null cells print as NULL.
func RenderTable(w io.Writer, rows *db.Rows, opts Options) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 40
	}

	cols := len(rows.Columns)
	if cols == 0 {
		fmt.Fprintln(w, "(no columns)")
		return
	}

	// compute widths
	widths := make([]int, cols)
	for i, col := range rows.Columns {
		widths[i] = min(runewidth.StringWidth(col.Name), opts.MaxWidth)
	}
	cells := make([][]string, len(rows.Data))
	for ri, r := range rows.Data {
		cells[ri] = make([]string, cols)
		for i := range cols {
			s := "NULL"
			if i < len(r) {
				s = FormatCell(r[i].Value)
			}
			cells[ri][i] = s
			if l := runewidth.StringWidth(s); l > widths[i] {
				widths[i] = min(l, opts.MaxWidth)
			}
		}
	}

	sep := func(ch string) string {
		var b strings.Builder
		b.WriteString("+")
		for i := range widths {
			b.WriteString(strings.Repeat(ch, widths[i]+2))
			b.WriteString("+")
		}
		return b.String()
	}

	writeRow := func(cells []string) {
		var b strings.Builder
		b.WriteString("|")
		for i, c := range cells {
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(truncate(c, widths[i]), widths[i]))
			b.WriteString(" |")
		}
		fmt.Fprintln(w, b.String())
	}

	fmt.Fprintln(w, sep("-"))
	writeRow(db.ColumnNames(rows.Columns))
	fmt.Fprintln(w, sep("="))
	for _, r := range cells {
		writeRow(r)
	}
	fmt.Fprintln(w, sep("-"))
	fmt.Fprintf(w, "(%d rows)\n", len(rows.Data))
}

// RenderJSON writes rows as an indented JSON array of objects, keeping
// column order.
func RenderJSON(w io.Writer, rows *db.Rows) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows.Records())
}

// RenderList writes one name per line.
func RenderList(w io.Writer, names []string) {
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// FormatCell is the single-line display text of a cell.
func FormatCell(v db.Value) string {
	switch v.Kind() {
	case db.KindNull:
		return "NULL"
	case db.KindBlob:
		return fmt.Sprintf("<blob %d bytes>", len(v.Bytes()))
	case db.KindText:
		s := v.Str()
		if !isPrintable(s) {
			return fmt.Sprintf("%q", s)
		}
		return strings.NewReplacer("\n", `\n`, "\t", " ").Replace(s)
	default:
		return v.String()
	}
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}

func truncate(s string, w int) string {
	if runewidth.StringWidth(s) <= w {
		return s
	}
	if w <= 3 {
		return runewidth.Truncate(s, w, "")
	}
	return runewidth.Truncate(s, w, "...")
}
