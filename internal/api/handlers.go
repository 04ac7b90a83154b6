package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
	"github.com/bgunnarsson/tabled/internal/transfer"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Driver       string `json:"driver"`
	DefaultTable string `json:"default_table"`
	Clients      int    `json:"clients"`
}

// MessageResult is the body of a successful mutation.
type MessageResult struct {
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
	Deleted *int64 `json:"deleted,omitempty"`
}

type addRowRequest struct {
	TableName string `json:"table_name"`
	RowData   db.Row `json:"row_data"`
}

type addRowsRequest struct {
	TableName string   `json:"table_name"`
	Rows      []db.Row `json:"rows"`
}

type removeRowRequest struct {
	TableName string `json:"table_name"`
	Condition string `json:"condition"`
}

type columnRequest struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	ColumnType string `json:"column_type"`
}

type addUserRequest struct {
	Name db.Value `json:"name"`
	Age  db.Value `json:"age"`
}

type runScriptRequest struct {
	ScriptName string   `json:"script_name"`
	Args       []string `json:"args"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	respond(w, http.StatusOK, HealthInfo{
		Status:       "healthy",
		Version:      s.cfg.Version,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Driver:       s.store.Dialect().Name(),
		DefaultTable: s.store.DefaultTable(),
		Clients:      s.hub.ClientCount(),
	})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	tables, err := s.store.ListTables(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, tables, len(tables))
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	table := s.table(r.URL.Query().Get("table_name"))
	rows, err := s.store.ReadTable(r.Context(), table)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, rows.Records(), len(rows.Data))
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req addRowRequest
	if !s.decode(w, r, &req) {
		return
	}
	table := s.table(req.TableName)
	if err := s.store.AddRow(r.Context(), table, req.RowData); err != nil {
		respondErr(w, r, err)
		return
	}
	s.changed(w, "add_row", table, MessageResult{Message: "Row added successfully."})
}

func (s *Server) handleAddRows(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req addRowsRequest
	if !s.decode(w, r, &req) {
		return
	}
	table := s.table(req.TableName)
	n, err := s.store.AddRows(r.Context(), table, req.Rows)
	if n > 0 {
		s.hub.Broadcast(ChangeMessage{Operation: "add_rows", Table: table,
			Message: fmt.Sprintf("%d rows added", n), Data: map[string]any{"count": n}})
	}
	if err != nil {
		respondErr(w, r, errors.Wrapf(err, "added %d of %d rows", n, len(req.Rows)))
		return
	}
	respond(w, http.StatusOK, MessageResult{Message: fmt.Sprintf("%d rows added successfully.", n), Count: &n})
}

func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req removeRowRequest
	if !s.decode(w, r, &req) {
		return
	}
	table := s.table(req.TableName)
	n, err := s.store.RemoveRow(r.Context(), table, req.Condition)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.changed(w, "remove_row", table, MessageResult{Message: fmt.Sprintf("%d rows removed.", n), Deleted: &n})
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req columnRequest
	if !s.decode(w, r, &req) {
		return
	}
	table := s.table(req.TableName)
	if err := s.store.AddColumn(r.Context(), table, req.ColumnName, req.ColumnType); err != nil {
		respondErr(w, r, err)
		return
	}
	s.changed(w, "add_column", table, MessageResult{Message: fmt.Sprintf("Column %s added.", req.ColumnName)})
}

func (s *Server) handleRemoveColumn(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req columnRequest
	if !s.decode(w, r, &req) {
		return
	}
	table := s.table(req.TableName)
	if err := s.store.RemoveColumn(r.Context(), table, req.ColumnName); err != nil {
		respondErr(w, r, err)
		return
	}
	s.changed(w, "remove_column", table, MessageResult{Message: fmt.Sprintf("Column %s removed.", req.ColumnName)})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req addUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	row := db.Row{
		{Name: "name", Value: req.Name},
		{Name: "age", Value: req.Age},
	}
	if err := s.store.AddRow(r.Context(), s.cfg.UsersTable, row); err != nil {
		respondErr(w, r, err)
		return
	}
	s.changed(w, "add_row", s.cfg.UsersTable, map[string]string{"status": "success"})
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.scripts == nil {
		respondError(w, http.StatusServiceUnavailable, "SCRIPTS_DISABLED", "script runner is not configured")
		return
	}
	var req runScriptRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.scripts.Run(r.Context(), req.ScriptName, req.Args...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.scripts == nil {
		respondList(w, []string{}, 0)
		return
	}
	names, err := s.scripts.List()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, names, len(names))
}

// handleExport streams a table as a download. The X-Content-Blake3 header
// carries the digest of the body.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	table := s.table(q.Get("table_name"))
	formatName := q.Get("format")
	if formatName == "" {
		formatName = string(transfer.FormatJSON)
	}
	format, err := transfer.ParseFormat(formatName)
	if err != nil {
		respondErr(w, r, errors.NewInvalid("export", err.Error()))
		return
	}

	rows, err := s.store.ReadTable(r.Context(), table)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := transfer.Encode(&buf, table, rows, format); err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, table+"."+string(format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Blake3", transfer.Digest(buf.Bytes()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// table falls back to the default table for an empty name.
func (s *Server) table(name string) string {
	if name == "" {
		return s.store.DefaultTable()
	}
	return name
}

// decode reads a JSON body into v, answering the request itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case err == io.EOF:
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", "request body is empty")
		default:
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}

// changed answers a successful mutation and tells the change feed.
func (s *Server) changed(w http.ResponseWriter, operation, table string, result any) {
	msg := ""
	if m, ok := result.(MessageResult); ok {
		msg = m.Message
	}
	s.hub.Broadcast(ChangeMessage{Operation: operation, Table: table, Message: msg})
	respond(w, http.StatusOK, result)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only "+method+" is allowed")
	return false
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrTableNotFound),
		errors.Is(err, errors.ErrColumnNotFound),
		errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrColumnExists):
		return http.StatusConflict
	case errors.Is(err, errors.ErrSchemaMismatch),
		errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrQuery):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondErr answers with the error's code and logs server-side failures.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		logging.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "error", err)
	}
	respondError(w, status, errors.Code(err), err.Error())
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: now()},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: now()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: now()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
