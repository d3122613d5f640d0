package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/metrics"
	"github.com/slok/activator/internal/printer"
	"github.com/slok/activator/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug                bool
	NoLog                bool
	NoColor              bool
	LoggerType           string
	DBPath               string
	MetricsListenAddress string

	// Global instances.
	Version string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  log.Logger
	Metrics metrics.Recorder
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".activator", "activator.db")
	app.Flag("db-path", "Path to the SQLite database file.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("metrics-listen-address", "Address to serve Prometheus metrics on while the command runs, disabled when empty.").StringVar(&c.MetricsListenAddress)

	return c
}

// repositories opens the resource and the record repositories on the same database.
func (r *RootCommand) repositories(ctx context.Context) (*sqlite.Repository, *sqlite.RecordRepository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DBPath,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create repository: %w", err)
	}

	records, err := sqlite.NewRecordRepository(sqlite.RecordRepositoryConfig{
		DB:     repo.DB(),
		Logger: r.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create record repository: %w", err)
	}

	return repo, records, nil
}

func (r *RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

func formatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(format, formatTable, formatJSON)
}
