package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bgunnarsson/tabled/internal/api"
	"github.com/bgunnarsson/tabled/internal/app"
	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/print"
	"github.com/bgunnarsson/tabled/internal/script"
	"github.com/bgunnarsson/tabled/internal/transfer"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	ScriptFlags `embed:""`

	Addr            string        `help:"Listen address." default:":5000" env:"TABLED_ADDR"`
	MaxBodyBytes    int64         `help:"Request body limit in bytes." default:"1048576" env:"TABLED_MAX_BODY_BYTES"`
	AllowedOrigins  []string      `help:"CORS and websocket origins; empty allows all." sep:"," env:"TABLED_ALLOWED_ORIGINS"`
	UsersTable      string        `help:"Table behind /add-user." default:"users" env:"TABLED_USERS_TABLE"`
	ShutdownTimeout time.Duration `help:"Graceful shutdown budget." default:"10s" env:"TABLED_SHUTDOWN_TIMEOUT"`
	NoScripts       bool          `help:"Disable /run-script." env:"TABLED_NO_SCRIPTS"`
}

func (c *ServeCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	var runner *script.Runner
	if !c.NoScripts {
		runner = c.runner()
	}

	srv := api.New(api.Config{
		Addr:            c.Addr,
		MaxBodyBytes:    c.MaxBodyBytes,
		AllowedOrigins:  c.AllowedOrigins,
		UsersTable:      c.UsersTable,
		Version:         version,
		ShutdownTimeout: c.ShutdownTimeout,
	}, h, runner)
	return srv.ListenAndServe(e.ctx)
}

// TablesCmd lists tables.
type TablesCmd struct{}

func (c *TablesCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return app.RunTables(e.ctx, e.out, h)
}

// ShowCmd prints a table.
type ShowCmd struct {
	Table    string `arg:"" optional:"" help:"Table to print; the default table if omitted."`
	Format   string `help:"Output format (${enum}); auto prints a grid on a terminal and JSON otherwise." default:"auto" enum:"auto,table,json"`
	MaxWidth int    `help:"Maximum column width of the grid." default:"40"`
}

func (c *ShowCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	asJSON := c.Format == "json" || (c.Format == "auto" && !e.tty)
	return app.RunShow(e.ctx, e.out, h, c.Table, app.ShowOptions{JSON: asJSON, MaxWidth: c.MaxWidth})
}

// BrowseCmd starts the terminal browser.
type BrowseCmd struct{}

func (c *BrowseCmd) Run(g *Globals, e *env) error {
	if !e.tty || !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("browse needs a terminal; use \"tabled show\" instead")
	}
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return app.RunBrowse(e.ctx, h)
}

// RowCmd groups row commands.
type RowCmd struct {
	Add    RowAddCmd    `cmd:"" help:"Add a row."`
	Remove RowRemoveCmd `cmd:"" help:"Remove rows matching a condition."`
}

// RowAddCmd adds one row given as name=value pairs or a JSON object.
type RowAddCmd struct {
	Table  string   `arg:"" help:"Target table."`
	Fields []string `arg:"" optional:"" help:"Fields as name=value; value \"null\" is NULL, numbers are numbers."`
	JSON   string   `name:"json" help:"Row as a JSON object, e.g. '{\"name\":\"Ann\",\"age\":30}'."`
}

func (c *RowAddCmd) Run(g *Globals, e *env) error {
	row, err := c.row()
	if err != nil {
		return err
	}
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.AddRow(e.ctx, c.Table, row); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Row added successfully.")
	return nil
}

func (c *RowAddCmd) row() (db.Row, error) {
	var row db.Row
	if c.JSON != "" {
		if err := json.Unmarshal([]byte(c.JSON), &row); err != nil {
			return nil, errors.NewInvalid("add row", "invalid --json: "+err.Error())
		}
	}
	for _, f := range c.Fields {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, errors.NewInvalid("add row", fmt.Sprintf("field %q is not name=value", f))
		}
		row.Set(name, db.ParseValue(value))
	}
	return row, nil
}

// RowRemoveCmd deletes rows. The condition is SQL placed after WHERE.
type RowRemoveCmd struct {
	Table     string `arg:"" help:"Target table."`
	Condition string `arg:"" optional:"" help:"SQL condition, e.g. \"id = 3\"."`
	All       bool   `help:"Allow an empty condition, deleting every row."`
}

func (c *RowRemoveCmd) Run(g *Globals, e *env) error {
	if strings.TrimSpace(c.Condition) == "" && !c.All {
		return errors.NewInvalid("remove row", "empty condition deletes every row; pass --all to confirm")
	}
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.RemoveRow(e.ctx, c.Table, c.Condition)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d rows removed.\n", n)
	return nil
}

// ColumnCmd groups column commands.
type ColumnCmd struct {
	Add    ColumnAddCmd    `cmd:"" help:"Add a column."`
	Remove ColumnRemoveCmd `cmd:"" help:"Remove a column by rebuilding the table."`
}

type ColumnAddCmd struct {
	Table  string `arg:"" help:"Target table."`
	Column string `arg:"" help:"New column name."`
	Type   string `arg:"" optional:"" help:"Column type; TEXT if omitted."`
}

func (c *ColumnAddCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.AddColumn(e.ctx, c.Table, c.Column, c.Type); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Column %s added.\n", c.Column)
	return nil
}

type ColumnRemoveCmd struct {
	Table  string `arg:"" help:"Target table."`
	Column string `arg:"" help:"Column to remove."`
}

func (c *ColumnRemoveCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.RemoveColumn(e.ctx, c.Table, c.Column); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Column %s removed.\n", c.Column)
	return nil
}

// ScriptCmd groups script commands.
type ScriptCmd struct {
	Run  ScriptRunCmd  `cmd:"" help:"Run a script and print its output."`
	List ScriptListCmd `cmd:"" help:"List scripts."`
}

type ScriptRunCmd struct {
	ScriptFlags `embed:""`

	Name string   `arg:"" help:"Script file name inside the scripts directory."`
	Args []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to the script."`
}

func (c *ScriptRunCmd) Run(e *env) error {
	res, err := c.runner().Run(e.ctx, c.Name, c.Args...)
	if err != nil {
		return err
	}
	fmt.Fprint(e.out, res.Output)
	if res.Error != "" {
		fmt.Fprint(os.Stderr, res.Error)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("script %s exited with status %d", res.Script, res.ExitCode)
	}
	return nil
}

type ScriptListCmd struct {
	ScriptFlags `embed:""`
}

func (c *ScriptListCmd) Run(e *env) error {
	names, err := c.runner().List()
	if err != nil {
		return err
	}
	print.RenderList(e.out, names)
	return nil
}

// ExportCmd writes a table to a location.
type ExportCmd struct {
	Table    string `arg:"" help:"Table to export."`
	Location string `arg:"" help:"Path, file://, or s3://bucket/key. A .xz suffix compresses."`
	Format   string `help:"Format: csv, json or xml; derived from the location if omitted."`
}

func (c *ExportCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	rep, err := transfer.Export(e.ctx, h, c.Table, c.Location, transfer.Options{
		Format: transfer.Format(c.Format),
		S3:     g.s3(),
	})
	if err != nil {
		return err
	}
	printReport(e, "Exported", rep)
	return nil
}

// ImportCmd appends rows from a location to a table.
type ImportCmd struct {
	Table    string `arg:"" help:"Table to import into."`
	Location string `arg:"" help:"Path, file://, http(s):// or s3://bucket/key."`
	Format   string `help:"Format: csv, json or xml; derived from the location if omitted."`
	Digest   string `help:"Expected BLAKE3 hex digest of the bytes read."`
}

func (c *ImportCmd) Run(g *Globals, e *env) error {
	h, err := g.open(e.ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	rep, err := transfer.Import(e.ctx, h, c.Table, c.Location, transfer.Options{
		Format: transfer.Format(c.Format),
		S3:     g.s3(),
		Digest: c.Digest,
	})
	if err != nil && rep != nil && rep.Rows > 0 {
		printReport(e, "Partially imported", rep)
	}
	if err != nil {
		return err
	}
	printReport(e, "Imported", rep)
	return nil
}

func printReport(e *env, verb string, rep *transfer.Report) {
	compressed := ""
	if rep.Compressed {
		compressed = ", xz"
	}
	fmt.Fprintf(e.out, "%s %d rows of %s (%s%s, %d bytes) %s\nblake3 %s\n",
		verb, rep.Rows, rep.Table, rep.Format, compressed, rep.Bytes, rep.Location, rep.Digest)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.out, "tabled %s (drivers: %s)\n", version, strings.Join(driverNames(), ", "))
	return nil
}

func driverNames() []string {
	var out []string
	for _, d := range app.Drivers() {
		out = append(out, string(d))
	}
	return out
}
