package transfer

import (
	"bufio"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/bgunnarsson/tabled/internal/db"
)

// Format is a table serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// xzSuffix marks a compressed location.
const xzSuffix = ".xz"

// ParseFormat accepts csv, json or xml in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want csv, json or xml)", s)
}

// FormatFromPath derives the format from a location's extension,
// ignoring a trailing .xz.
func FormatFromPath(location string) (Format, error) {
	p := strings.TrimSuffix(strings.ToLower(location), xzSuffix)
	if i := strings.IndexAny(p, "?#"); i >= 0 && DetectScheme(location) != SchemeLocal {
		p = p[:i]
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot tell format of %q; pass one explicitly", location)
	}
	return ParseFormat(ext)
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXML:
		return "application/xml; charset=utf-8"
	default:
		return "application/json"
	}
}

// Encode writes rows of table to w in format f.
func Encode(w io.Writer, table string, rows *db.Rows, f Format) error {
	switch f {
	case FormatCSV:
		return encodeCSV(w, rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows.Records())
	case FormatXML:
		return encodeXML(w, table, rows)
	}
	return fmt.Errorf("unknown format %q", string(f))
}

// Decode reads rows in format f from r.
func Decode(r io.Reader, f Format) ([]db.Row, error) {
	switch f {
	case FormatCSV:
		return decodeCSV(r)
	case FormatJSON:
		var rows []db.Row
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return rows, nil
	case FormatXML:
		return decodeXML(r)
	}
	return nil, fmt.Errorf("unknown format %q", string(f))
}

// CSV: a header of column names, then one record per row. Null is an
// empty cell; every other value is its display text.
func encodeCSV(w io.Writer, rows *db.Rows) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(db.ColumnNames(rows.Columns)); err != nil {
		return err
	}
	record := make([]string, len(rows.Columns))
	for _, row := range rows.Records() {
		for i := range record {
			record[i] = ""
			if i < len(row) && !row[i].Value.IsNull() {
				record[i] = row[i].Value.String()
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeCSV(r io.Reader) ([]db.Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return []db.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode csv header: %w", err)
	}

	out := []db.Row{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode csv: %w", err)
		}
		row := make(db.Row, 0, len(header))
		for i, name := range header {
			v := db.Null()
			if record[i] != "" {
				v = db.Text(record[i])
			}
			row.Set(name, v)
		}
		out = append(out, row)
	}
}

// XML:
//
//	<rows table="t">
//	  <row><field name="id" type="integer">1</field>...</row>
//	</rows>
//
// type is the value kind; blobs are base64.
func encodeXML(w io.Writer, table string, rows *db.Rows) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	bw.WriteString(`<rows table="`)
	xml.EscapeText(bw, []byte(table))
	bw.WriteString("\">\n")
	for _, row := range rows.Records() {
		bw.WriteString("  <row>")
		for _, f := range row {
			bw.WriteString(`<field name="`)
			xml.EscapeText(bw, []byte(f.Name))
			bw.WriteString(`" type="`)
			bw.WriteString(f.Value.Kind().String())
			bw.WriteString(`">`)
			if !f.Value.IsNull() {
				if err := xml.EscapeText(bw, []byte(f.Value.String())); err != nil {
					return err
				}
			}
			bw.WriteString("</field>")
		}
		bw.WriteString("</row>\n")
	}
	bw.WriteString("</rows>\n")
	return bw.Flush()
}

var (
	rowsExpr  = xpath.MustCompile("/rows/row")
	fieldExpr = xpath.MustCompile("field")
)

func decodeXML(r io.Reader) ([]db.Row, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	if xmlquery.FindOne(doc, "/rows") == nil {
		return nil, fmt.Errorf("decode xml: missing <rows> root")
	}

	out := []db.Row{}
	for _, rowNode := range xmlquery.QuerySelectorAll(doc, rowsExpr) {
		row := db.Row{}
		for _, fieldNode := range xmlquery.QuerySelectorAll(rowNode, fieldExpr) {
			name := fieldNode.SelectAttr("name")
			if name == "" {
				return nil, fmt.Errorf("decode xml: field without name in row %d", len(out)+1)
			}
			v, err := parseTyped(fieldNode.SelectAttr("type"), fieldNode.InnerText())
			if err != nil {
				return nil, fmt.Errorf("decode xml: row %d field %q: %w", len(out)+1, name, err)
			}
			row.Set(name, v)
		}
		out = append(out, row)
	}
	return out, nil
}

// parseTyped converts text tagged with a kind name back into a Value.
func parseTyped(kind, text string) (db.Value, error) {
	k, ok := db.ParseKind(kind)
	if !ok {
		return db.Null(), fmt.Errorf("unknown type %q", kind)
	}
	switch k {
	case db.KindNull:
		return db.Null(), nil
	case db.KindInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return db.Null(), err
		}
		return db.Integer(i), nil
	case db.KindReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return db.Null(), err
		}
		return db.Real(f), nil
	case db.KindBlob:
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return db.Null(), err
		}
		return db.Blob(b), nil
	default:
		return db.Text(text), nil
	}
}
