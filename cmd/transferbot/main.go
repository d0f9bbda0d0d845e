package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/db"
	"github.com/hpungsan/transferbot/internal/mcp"
	"github.com/hpungsan/transferbot/internal/pgstore"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/telemetry"
	"github.com/hpungsan/transferbot/pkg/logger"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"extract": true, "convert": true,
	"add": true, "finish": true, "reset": true, "show": true,
	"sessions": true, "history": true, "purge": true, "export": true,
	"serve": true, "watch": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                      __           _           _
  | |_ _ __ __ _ _ __  ___/ _| ___ _ __| |__   ___ | |_
  | __| '__/ _' | '_ \/ __| |_ / _ \ '__| '_ \ / _ \| __|
  | |_| | | (_| | | | \__ \  _|  __/ |  | |_) | (_) | |_
   \__|_|  \__,_|_| |_|___/_|  \___|_|  |_.__/ \___/ \__|

  Transfer listings to spreadsheet rows

  Usage: transferbot <command> [options]
         transferbot --help

  MCP server mode requires piped input.`)
}

// openStore opens the session backend selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config, baseDir string) (session.Backend, error) {
	switch cfg.Store {
	case "", config.StoreSQLite:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, cfg)
		return db.NewStore(database), nil
	case config.StorePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("store %q requires postgres_dsn", cfg.Store)
		}
		return pgstore.Open(ctx, cfg.PostgresDSN)
	case config.StoreMemory:
		return session.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite, postgres, or memory)", cfg.Store)
	}
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	// No args + interactive terminal → show banner and exit
	if len(args) < 2 && isTerminal() {
		printBanner()
		return 0
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion(args) {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode(args) && len(args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
		fmt.Fprintf(os.Stderr, "Run 'transferbot --help' for usage.\n")
		return 1
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		return 1
	}
	baseDir := filepath.Join(homeDir, ".transferbot")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: Version,
		MetricsFile:    cfg.MetricsFile,
	}, log)
	if err != nil {
		log.Error("Failed to initialize telemetry", logger.Error(err))
		return 1
	}
	defer shutdown()

	store, err := openStore(ctx, cfg, baseDir)
	if err != nil {
		log.Error("Failed to open session store", logger.String("store", cfg.Store), logger.Error(err))
		return 1
	}
	defer store.Close()

	// CLI mode: known subcommand
	if isCLIMode(args) {
		app := newCLIApp(store, cfg, log)
		if err := app.RunContext(telemetry.WithSource(ctx, "cli"), args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// MCP server mode (default)
	if err := mcp.Run(store, cfg, log, Version); err != nil {
		log.Error("MCP server stopped", logger.Error(err))
		return 1
	}
	return 0
}
