package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/budgetwise/internal/logging"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is normal; real environment variables still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	root := newRootCommand()
	if err := root.command.Parse(os.Args[1:], ff.WithEnvVarPrefix("BUDGETWISE")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.command.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := root.setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.command.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.command))
			os.Exit(1)
		}
		slog.Error("Command failed", "command", root.command.GetSelected().Name, "error", err)
		stop()
		os.Exit(1)
	}
}

// rootCommand holds the flags shared by every subcommand
type rootCommand struct {
	command *ff.Command
	flags   *ff.FlagSet

	dbPath        *string
	categoryTable *string
	rulesBackend  *string
	postgresURL   *string
	batchWorkers  *int
	logLevel      *string
	logJSON       *bool
}

func newRootCommand() *rootCommand {
	fs := ff.NewFlagSet("budgetwise")
	root := &rootCommand{
		flags:         fs,
		dbPath:        fs.StringLong("db", "budgetwise.db", "Database file path"),
		categoryTable: fs.StringLong("category-table", "", "JSON merchant/keyword table replacing the built-in one"),
		rulesBackend:  fs.StringLong("rules-backend", "bolt", "Rule store: 'bolt' or 'postgres'"),
		postgresURL:   fs.StringLong("postgres-url", "", "PostgreSQL connection string for the postgres rule store"),
		batchWorkers:  fs.IntLong("batch-workers", 4, "Concurrent workers for batch categorization"),
		logLevel:      fs.StringLong("log-level", "", "Log level: debug, info, warn or error (default LOG_LEVEL or info)"),
		logJSON:       fs.BoolLong("log-json", "Write logs as JSON"),
	}
	fs.BoolLong("version", "Show version information")

	root.command = &ff.Command{
		Name:      "budgetwise",
		Usage:     "budgetwise [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "receipt parsing and transaction categorization",
		Flags:     fs,
	}
	root.command.Subcommands = []*ff.Command{
		newServeCommand(root),
		newParseCommand(root),
		newCategorizeCommand(root),
		newTokenCommand(root),
	}
	return root
}

func (r *rootCommand) setupLogging() error {
	cfg := logging.DefaultConfig()
	if *r.logLevel != "" {
		level, err := logging.ParseLevel(*r.logLevel)
		if err != nil {
			return err
		}
		cfg.Level = level
	}
	cfg.JSON = *r.logJSON
	logging.Setup(cfg)
	return nil
}
