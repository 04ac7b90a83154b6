// Package api is the HTTP front end of the table store: JSON endpoints,
// the index page and a websocket change feed.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/logging"
	"github.com/bgunnarsson/tabled/internal/script"
)

// Store is the table store the server fronts.
type Store interface {
	AddRow(ctx context.Context, table string, row db.Row) error
	AddRows(ctx context.Context, table string, rows []db.Row) (int, error)
	RemoveRow(ctx context.Context, table, condition string) (int64, error)
	AddColumn(ctx context.Context, table, column, typ string) error
	RemoveColumn(ctx context.Context, table, column string) error
	ReadTable(ctx context.Context, table string) (*db.Rows, error)
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]db.Column, error)
	DefaultTable() string
	Dialect() db.Dialect
}

// Server serves one store.
type Server struct {
	cfg     Config
	store   Store
	scripts *script.Runner
	hub     *Hub
	started time.Time
}

// New builds a server. Call Run to start the websocket hub alongside the
// handler, or ListenAndServe to do both.
func New(cfg Config, st Store, scripts *script.Runner) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		store:   st,
		scripts: scripts,
		hub:     NewHub(cfg.AllowedOrigins),
		started: time.Now(),
	}
}

// Hub returns the change feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", staticHandler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tables", s.handleTables)
	mux.HandleFunc("/get-data", s.handleGetData)
	mux.HandleFunc("/add-row", s.handleAddRow)
	mux.HandleFunc("/add-rows", s.handleAddRows)
	mux.HandleFunc("/remove-row", s.handleRemoveRow)
	mux.HandleFunc("/add-column", s.handleAddColumn)
	mux.HandleFunc("/remove-column", s.handleRemoveColumn)
	mux.HandleFunc("/add-user", s.handleAddUser)
	mux.HandleFunc("/run-script", s.handleRunScript)
	mux.HandleFunc("/scripts", s.handleScripts)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/ws", s.hub.ServeWS)

	return mux
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.setupRoutes()
	handler = SecurityHeadersMiddleware(handler)
	handler = CORSMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// Run runs the websocket hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// ListenAndServe serves on cfg.Addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.Run(hubCtx)

	logging.ServerStartup("http", ln.Addr().String(),
		"driver", s.store.Dialect().Name(),
		"default_table", s.store.DefaultTable(),
		"version", s.cfg.Version)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "timeout", s.cfg.ShutdownTimeout.String())
	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	return nil
}
