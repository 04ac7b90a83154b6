package db

import (
	"strings"
)

// QuoteDouble quotes ident with ANSI double quotes, doubling embedded quotes.
func QuoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// JoinQuoted quotes every name and joins them with ", ".
func JoinQuoted(quote func(string) string, names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quote(n)
	}
	return strings.Join(parts, ", ")
}

// ColumnDefSQL renders `name TYPE [NOT NULL] [DEFAULT expr]`.
func ColumnDefSQL(quote func(string) string, col Column) string {
	var b strings.Builder
	b.WriteString(quote(col.Name))
	if col.Type != "" {
		b.WriteString(" ")
		b.WriteString(col.Type)
	}
	if col.NotNull {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*col.Default)
	}
	return b.String()
}

// CopyRowsSQL renders INSERT INTO to (cols) SELECT cols FROM from.
func CopyRowsSQL(quote func(string) string, from, to string, cols []string) string {
	list := JoinQuoted(quote, cols)
	return "INSERT INTO " + quote(to) + " (" + list + ") SELECT " + list + " FROM " + quote(from)
}

// Placeholders returns n comma separated "?" markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
