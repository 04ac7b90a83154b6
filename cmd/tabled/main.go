package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/bgunnarsson/tabled/internal/app"
	"github.com/bgunnarsson/tabled/internal/logging"
	"github.com/bgunnarsson/tabled/internal/script"
	"github.com/bgunnarsson/tabled/internal/store"
	"github.com/bgunnarsson/tabled/internal/transfer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Globals are the flags every command accepts.
type Globals struct {
	Config kong.ConfigFlag `help:"Load configuration from a JSON file." short:"c"`

	Driver            string `help:"Database driver (${enum})." default:"sqlite" enum:"sqlite,postgres,mysql,mssql" env:"TABLED_DRIVER"`
	DB                string `name:"db" help:"SQLite file path or server DSN." default:"data.db" env:"TABLED_DB"`
	DefaultTable      string `help:"Table created on first use and used when no table is named." default:"generic_table" env:"TABLED_DEFAULT_TABLE"`
	Profile           string `help:"Column set of the default table (${enum})." default:"generic" enum:"generic,users" env:"TABLED_PROFILE"`
	StrictIdentifiers bool   `help:"Reject table and column names that are not plain identifiers." default:"true" negatable:"" env:"TABLED_STRICT_IDENTIFIERS"`

	LogLevel  string `help:"Log level (${enum})." default:"info" enum:"debug,info,warn,error" env:"TABLED_LOG_LEVEL"`
	LogFormat string `help:"Log format (${enum})." default:"text" enum:"text,json" env:"TABLED_LOG_FORMAT"`

	S3AccessKey string `name:"s3-access-key" help:"S3 access key for s3:// locations." env:"TABLED_S3_ACCESS_KEY"`
	S3SecretKey string `name:"s3-secret-key" help:"S3 secret key." env:"TABLED_S3_SECRET_KEY"`
	S3Region    string `name:"s3-region" help:"S3 region." env:"TABLED_S3_REGION"`
	S3Endpoint  string `name:"s3-endpoint" help:"Custom S3-compatible endpoint." env:"TABLED_S3_ENDPOINT"`
}

// ScriptFlags configure the script runner.
type ScriptFlags struct {
	ScriptsDir    string        `help:"Directory scripts are run from." default:"scripts" type:"path" env:"TABLED_SCRIPTS_DIR"`
	Interpreter   string        `help:"Program that runs a script; empty runs the file itself." default:"python3" env:"TABLED_INTERPRETER"`
	ScriptTimeout time.Duration `help:"Time limit of one script run." default:"60s" env:"TABLED_SCRIPT_TIMEOUT"`
}

func (f ScriptFlags) runner() *script.Runner {
	return script.New(script.Config{Dir: f.ScriptsDir, Interpreter: f.Interpreter, Timeout: f.ScriptTimeout})
}

// CLI is the tabled command line.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API and index page."`
	Tables  TablesCmd  `cmd:"" help:"List tables."`
	Show    ShowCmd    `cmd:"" help:"Print a table."`
	Browse  BrowseCmd  `cmd:"" help:"Browse tables in the terminal."`
	Row     RowCmd     `cmd:"" help:"Add or remove rows."`
	Column  ColumnCmd  `cmd:"" help:"Add or remove columns."`
	Script  ScriptCmd  `cmd:"" help:"Run or list scripts."`
	Export  ExportCmd  `cmd:"" help:"Export a table to a file, URL or s3:// location."`
	Import  ImportCmd  `cmd:"" help:"Import rows into a table from a file, URL or s3:// location."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

// env carries what commands need besides flags.
type env struct {
	ctx context.Context
	out io.Writer
	tty bool
}

func (g *Globals) storeConfig() store.Config {
	return store.Config{
		DSN:               g.DB,
		DefaultTable:      g.DefaultTable,
		Profile:           store.Profile(g.Profile),
		StrictIdentifiers: g.StrictIdentifiers,
	}
}

func (g *Globals) open(ctx context.Context) (*store.Handle, error) {
	return app.Open(ctx, app.Driver(g.Driver), g.storeConfig())
}

// s3 returns the S3 overrides, or nil to use the default AWS chain.
func (g *Globals) s3() *transfer.S3Config {
	if g.S3AccessKey == "" && g.S3SecretKey == "" && g.S3Region == "" && g.S3Endpoint == "" {
		return nil
	}
	return &transfer.S3Config{
		AccessKey: g.S3AccessKey,
		SecretKey: g.S3SecretKey,
		Region:    g.S3Region,
		Endpoint:  g.S3Endpoint,
	}
}

func newParser(cli *CLI, out, errOut io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("tabled"),
		kong.Description("Generic table store with an HTTP API, a CLI and a terminal browser."),
		kong.UsageOnError(),
		kong.Writers(out, errOut),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON, "/etc/tabled/config.json", "~/.config/tabled/config.json"),
	)
}

// execute runs the parsed command.
func execute(kctx *kong.Context, cli *CLI, e *env) error {
	logging.InitLogger(logging.ParseLevel(cli.LogLevel), logging.ParseFormat(cli.LogFormat))
	return kctx.Run(&cli.Globals, e)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	parser, err := newParser(&cli, os.Stdout, os.Stderr)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	e := &env{
		ctx: ctx,
		out: os.Stdout,
		tty: term.IsTerminal(int(os.Stdout.Fd())),
	}
	kctx.FatalIfErrorf(execute(kctx, &cli, e))
}
