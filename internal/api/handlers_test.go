package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bgunnarsson/tabled/internal/db/sqlite"
	"github.com/bgunnarsson/tabled/internal/script"
	"github.com/bgunnarsson/tabled/internal/store"
	"github.com/bgunnarsson/tabled/internal/transfer"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func newTestServer(t *testing.T, cfg store.Config) (*Server, *store.Handle) {
	t.Helper()
	cfg.DSN = filepath.Join(t.TempDir(), "data.db")
	h, err := store.Open(context.Background(), sqlite.New(), cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	runner := script.New(script.Config{Dir: t.TempDir(), Interpreter: "sh"})
	return New(Config{Version: "test"}, h, runner), h
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if str, ok := body.(string); ok {
			buf.WriteString(str)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, env := do(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var info HealthInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatal(err)
	}
	if info.Status != "healthy" || info.Driver != "sqlite" || info.DefaultTable != "generic_table" || info.Version != "test" {
		t.Errorf("health = %+v", info)
	}
	if env.Meta == nil || env.Meta.Timestamp == "" {
		t.Error("missing meta timestamp")
	}
}

func TestAddRowThenGetData(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, env := do(t, s, http.MethodPost, "/add-row", map[string]any{
		"row_data": map[string]any{"title": "first", "field1": "a"},
	})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("add-row status = %d, body = %s", w.Code, w.Body.String())
	}

	w, env = do(t, s, http.MethodGet, "/get-data", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get-data status = %d", w.Code)
	}
	// Column order must survive the round trip.
	want := `[{"id":1,"title":"first","field1":"a","field2":null,"field3":null}]`
	if string(env.Data) != want {
		t.Errorf("data = %s, want %s", env.Data, want)
	}
	if env.Meta.Total != 1 {
		t.Errorf("total = %d, want 1", env.Meta.Total)
	}
}

func TestGetDataEmptyTableIsEmptyList(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	_, env := do(t, s, http.MethodGet, "/get-data?table_name=generic_table", nil)
	if string(env.Data) != "[]" {
		t.Errorf("data = %s, want []", env.Data)
	}
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing table", http.MethodGet, "/get-data?table_name=nope", nil, http.StatusNotFound, "TABLE_NOT_FOUND"},
		{"unknown column", http.MethodPost, "/add-row", map[string]any{"row_data": map[string]any{"nope": 1}}, http.StatusBadRequest, "SCHEMA_MISMATCH"},
		{"bad condition", http.MethodPost, "/remove-row", map[string]any{"condition": "id ="}, http.StatusBadRequest, "QUERY_ERROR"},
		{"column exists", http.MethodPost, "/add-column", map[string]any{"column_name": "title"}, http.StatusConflict, "COLUMN_EXISTS"},
		{"column missing", http.MethodPost, "/remove-column", map[string]any{"column_name": "nope"}, http.StatusNotFound, "COLUMN_NOT_FOUND"},
		{"bad json", http.MethodPost, "/add-row", "{", http.StatusBadRequest, "INVALID_INPUT"},
		{"empty body", http.MethodPost, "/add-row", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"nested value", http.MethodPost, "/add-row", `{"row_data":{"title":{"a":1}}}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"wrong method", http.MethodGet, "/add-row", nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown script", http.MethodPost, "/run-script", map[string]any{"script_name": "missing.sh"}, http.StatusNotFound, "NOT_FOUND"},
		{"script traversal", http.MethodPost, "/run-script", map[string]any{"script_name": "../x.sh"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad export format", http.MethodGet, "/export?format=yaml", nil, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})
	s.cfg.MaxBodyBytes = 16

	w, env := do(t, s, http.MethodPost, "/add-row", map[string]any{
		"row_data": map[string]any{"title": strings.Repeat("x", 64)},
	})
	if w.Code != http.StatusRequestEntityTooLarge || env.Error == nil || env.Error.Code != "BODY_TOO_LARGE" {
		t.Errorf("status = %d, error = %+v", w.Code, env.Error)
	}
}

func TestColumnLifecycle(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	do(t, s, http.MethodPost, "/add-row", map[string]any{"row_data": map[string]any{"title": "keep"}})

	w, _ := do(t, s, http.MethodPost, "/add-column", map[string]any{"column_name": "email"})
	if w.Code != http.StatusOK {
		t.Fatalf("add-column status = %d, body = %s", w.Code, w.Body.String())
	}
	w, _ = do(t, s, http.MethodPost, "/remove-column", map[string]any{"column_name": "field2"})
	if w.Code != http.StatusOK {
		t.Fatalf("remove-column status = %d, body = %s", w.Code, w.Body.String())
	}

	_, env := do(t, s, http.MethodGet, "/get-data", nil)
	want := `[{"id":1,"title":"keep","field1":null,"field3":null,"email":null}]`
	if string(env.Data) != want {
		t.Errorf("data = %s, want %s", env.Data, want)
	}
}

func TestAddRowsAndRemoveRow(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, env := do(t, s, http.MethodPost, "/add-rows", map[string]any{
		"rows": []map[string]any{{"title": "a"}, {"title": "b"}, {"title": "c"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add-rows status = %d, body = %s", w.Code, w.Body.String())
	}
	var res MessageResult
	json.Unmarshal(env.Data, &res)
	if res.Count == nil || *res.Count != 3 {
		t.Errorf("count = %v, want 3", res.Count)
	}

	w, env = do(t, s, http.MethodPost, "/remove-row", map[string]any{"condition": "title <> 'b'"})
	if w.Code != http.StatusOK {
		t.Fatalf("remove-row status = %d, body = %s", w.Code, w.Body.String())
	}
	res = MessageResult{}
	json.Unmarshal(env.Data, &res)
	if res.Deleted == nil || *res.Deleted != 2 {
		t.Errorf("deleted = %v, want 2", res.Deleted)
	}

	_, env = do(t, s, http.MethodGet, "/get-data", nil)
	if !strings.Contains(string(env.Data), `"title":"b"`) || env.Meta.Total != 1 {
		t.Errorf("data = %s", env.Data)
	}
}

func TestAddUser(t *testing.T) {
	s, _ := newTestServer(t, store.Config{DefaultTable: "users", Profile: store.ProfileUsers})

	w, env := do(t, s, http.MethodPost, "/add-user", map[string]any{"name": "Ann", "age": 30})
	if w.Code != http.StatusOK || string(env.Data) != `{"status":"success"}` {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	_, env = do(t, s, http.MethodGet, "/get-data?table_name=users", nil)
	if string(env.Data) != `[{"id":1,"name":"Ann","age":30}]` {
		t.Errorf("data = %s", env.Data)
	}

	// age is NOT NULL
	w, _ = do(t, s, http.MethodPost, "/add-user", map[string]any{"name": "Bo"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing age status = %d, want 400", w.Code)
	}

	// name is NOT NULL too; a missing name is not an empty string.
	w, _ = do(t, s, http.MethodPost, "/add-user", map[string]any{"age": 40})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", w.Code)
	}
	_, env = do(t, s, http.MethodGet, "/get-data?table_name=users", nil)
	if string(env.Data) != `[{"id":1,"name":"Ann","age":30}]` {
		t.Errorf("data after rejected adds = %s", env.Data)
	}
}

func TestAddUserWithoutUsersTable(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, env := do(t, s, http.MethodPost, "/add-user", map[string]any{"name": "Ann", "age": 30})
	if w.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "TABLE_NOT_FOUND" {
		t.Errorf("status = %d, error = %+v", w.Code, env.Error)
	}
}

func TestTables(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	_, env := do(t, s, http.MethodGet, "/tables", nil)
	var tables []string
	json.Unmarshal(env.Data, &tables)
	if len(tables) != 1 || tables[0] != "generic_table" {
		t.Errorf("tables = %v", tables)
	}
}

func TestRunScriptAndList(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("needs a POSIX shell")
	}
	s, _ := newTestServer(t, store.Config{})
	if err := os.WriteFile(filepath.Join(s.scripts.Dir(), "hi.sh"), []byte("echo \"hi $1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, env := do(t, s, http.MethodGet, "/scripts", nil)
	if string(env.Data) != `["hi.sh"]` {
		t.Errorf("scripts = %s", env.Data)
	}

	w, env := do(t, s, http.MethodPost, "/run-script", map[string]any{"script_name": "hi.sh", "args": []string{"there"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res script.Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Output != "hi there\n" || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunScriptDisabled(t *testing.T) {
	s, h := newTestServer(t, store.Config{})
	s = New(Config{}, h, nil)

	w, _ := do(t, s, http.MethodPost, "/run-script", map[string]any{"script_name": "x.sh"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})
	do(t, s, http.MethodPost, "/add-row", map[string]any{"row_data": map[string]any{"title": "x"}})

	w, _ := do(t, s, http.MethodGet, "/export?format=csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="generic_table.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got, want := w.Header().Get("X-Content-Blake3"), transfer.Digest(w.Body.Bytes()); got != want {
		t.Errorf("digest header = %q, want %q", got, want)
	}
	if !strings.HasPrefix(w.Body.String(), "id,title,field1,field2,field3\n1,x,,,\n") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, _ := do(t, s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`data-default-table="generic_table"`, `name="field3"`, "/static/app.js"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if strings.Contains(body, `name="id"`) {
		t.Error("index offers the key column as input")
	}

	w, _ = do(t, s, http.MethodGet, "/static/app.js", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/get-data") {
		t.Errorf("static app.js status = %d", w.Code)
	}
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})

	w, _ := do(t, s, http.MethodGet, "/health", nil)
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}
