package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/logging"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// indexData feeds templates/index.html.
type indexData struct {
	Version      string
	Driver       string
	DefaultTable string
	Tables       []string
	Columns      []db.Column
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// handleIndex renders the index page. Any path the mux does not know lands
// here and gets a 404.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}

	data := indexData{
		Version:      s.cfg.Version,
		Driver:       s.store.Dialect().Name(),
		DefaultTable: s.store.DefaultTable(),
	}
	// The page still renders when the store is unreachable; the script
	// reports the failure when it fetches data.
	if tables, err := s.store.ListTables(r.Context()); err == nil {
		data.Tables = tables
	} else {
		logging.WarnContext(r.Context(), "index: list tables failed", "error", err)
	}
	if cols, err := s.store.DescribeTable(r.Context(), data.DefaultTable); err == nil {
		data.Columns = cols
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		logging.ErrorContext(r.Context(), "index: render failed", "error", err)
	}
}
