package print

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bgunnarsson/tabled/internal/db"
)

func sampleRows() *db.Rows {
	return &db.Rows{
		Columns: []db.Column{{Name: "id"}, {Name: "name"}, {Name: "age"}},
		Data: []db.Row{
			db.NewRow("id", int64(1), "name", "Ann", "age", int64(30)),
			db.NewRow("id", int64(2), "name", "Bo", "age", nil),
		},
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, sampleRows(), Options{})

	want := strings.Join([]string{
		"+----+------+------+",
		"| id | name | age  |",
		"+====+======+======+",
		"| 1  | Ann  | 30   |",
		"| 2  | Bo   | NULL |",
		"+----+------+------+",
		"(2 rows)",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("got\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestRenderTableTruncates(t *testing.T) {
	rows := &db.Rows{
		Columns: []db.Column{{Name: "note"}},
		Data:    []db.Row{db.NewRow("note", strings.Repeat("x", 50))},
	}
	var buf bytes.Buffer
	RenderTable(&buf, rows, Options{MaxWidth: 10})
	if !strings.Contains(buf.String(), "| xxxxxxx... |") {
		t.Errorf("not truncated:\n%s", buf.String())
	}
}

func TestRenderTableNoColumns(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, &db.Rows{}, Options{})
	if buf.String() != "(no columns)\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderJSONKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderJSON(&buf, sampleRows()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id": 1,`+"\n"+`    "name": "Ann",`) {
		t.Errorf("unexpected JSON:\n%s", buf.String())
	}

	buf.Reset()
	if err := RenderJSON(&buf, &db.Rows{}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "[]\n" {
		t.Errorf("empty = %q", buf.String())
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   db.Value
		want string
	}{
		{db.Null(), "NULL"},
		{db.Integer(-3), "-3"},
		{db.Real(1.5), "1.5"},
		{db.Text("a\nb"), `a\nb`},
		{db.Text("bell\a"), `"bell\a"`},
		{db.Blob([]byte{0, 1, 2}), "<blob 3 bytes>"},
	}
	for _, tt := range tests {
		if got := FormatCell(tt.in); got != tt.want {
			t.Errorf("FormatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
