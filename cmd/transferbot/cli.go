package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/ops"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/telemetry"
	"github.com/hpungsan/transferbot/internal/watcher"
	"github.com/hpungsan/transferbot/internal/web"
	"github.com/hpungsan/transferbot/pkg/logger"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(store session.Backend, cfg *config.Config, log *logger.Logger) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	app := &cli.App{
		Name:    "transferbot",
		Usage:   "Turn pasted transfer listings into spreadsheet rows",
		Version: Version,
		Commands: []*cli.Command{
			extractCmd(cfg, log),
			convertCmd(cfg, log),
			addCmd(store, cfg),
			finishCmd(store, cfg, log),
			resetCmd(store),
			showCmd(store),
			sessionsCmd(store),
			historyCmd(store),
			purgeCmd(store),
			exportCmd(store, cfg),
			serveCmd(store, cfg, log),
			watchCmd(cfg, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func sessionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "session",
		Aliases:  []string{"s"},
		Usage:    "Session id",
		EnvVars:  []string{"TRANSFERBOT_SESSION"},
		Required: true,
	}
}

func runSettingsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "time_anchored|field_completion|grouped (default from config)"},
		&cli.StringFlag{Name: "drop-lines", Usage: "Ignore lines matching this case-insensitive regexp"},
		&cli.StringFlag{Name: "drop-records", Usage: "Discard records with a line matching this regexp (e.g. '\\bSAW\\b')"},
		&cli.BoolFlag{Name: "bom", Usage: "Prefix the table with a UTF-8 BOM"},
	}
}

func runSettings(c *cli.Context) ops.RunSettings {
	return ops.RunSettings{
		Policy:              c.String("policy"),
		DropLinesMatching:   c.String("drop-lines"),
		DropRecordsMatching: c.String("drop-records"),
		IncludeBOM:          c.Bool("bom"),
	}
}

// extractCmd creates the extract command.
func extractCmd(cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Convert a listing and print the table (reads stdin unless a file is given)",
		ArgsUsage: "[file]",
		Flags: append(runSettingsFlags(),
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Listing file to read"},
			&cli.BoolFlag{Name: "json", Usage: "Print records, incomplete records, and stats as JSON"},
		),
		Action: func(c *cli.Context) error {
			path := c.String("file")
			if path == "" && c.NArg() > 0 {
				path = c.Args().First()
			}

			var text string
			var err error
			if path != "" {
				text, err = readFile(path, inputLimit(cfg))
			} else {
				text, err = readStdin(c.App.Reader, inputLimit(cfg))
			}
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Extract(c.Context, cfg, ops.ExtractInput{
				Text:        text,
				RunSettings: runSettings(c),
			})
			if err != nil {
				return outputError(err)
			}
			logIncomplete(log, "", output.Conversion)

			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}
			return outputTable(c.App.Writer, c.App.ErrWriter, output.Conversion)
		},
	}
}

// convertCmd creates the convert command.
func convertCmd(cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Write a .tsv next to each .txt listing",
		ArgsUsage: "<file.txt>...",
		Flags:     runSettingsFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("at least one .txt file is required"))
			}

			results := make([]*ops.ConvertFileOutput, 0, c.NArg())
			for _, src := range c.Args().Slice() {
				out, err := ops.ConvertFile(c.Context, cfg, ops.ConvertFileInput{
					Source:      src,
					RunSettings: runSettings(c),
				})
				if err != nil {
					return outputError(fmt.Errorf("%s: %w", src, err))
				}
				if out.Incomplete > 0 {
					log.Warn("Listing has incomplete records",
						logger.String("path", src),
						logger.Int("incomplete", out.Incomplete))
				}
				results = append(results, out)
			}
			return outputJSON(c.App.Writer, results)
		},
	}
}

// addCmd creates the add command.
func addCmd(store session.Backend, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Append text to a session buffer (reads stdin unless text is given)",
		ArgsUsage: "[text]",
		Flags:     []cli.Flag{sessionFlag()},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				var err error
				if text, err = readStdin(c.App.Reader, inputLimit(cfg)); err != nil {
					return outputError(err)
				}
			}

			output, err := ops.Add(c.Context, store, cfg, ops.AddInput{
				SessionID: c.String("session"),
				Text:      text,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// finishCmd creates the finish command.
func finishCmd(store session.Backend, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "finish",
		Usage: "Convert a session buffer and store the table as its last result",
		Flags: append(runSettingsFlags(),
			sessionFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Print the full result as JSON"},
		),
		Action: func(c *cli.Context) error {
			output, err := ops.Finish(c.Context, store, cfg, ops.FinishInput{
				SessionID:   c.String("session"),
				RunSettings: runSettings(c),
			})
			if err != nil {
				return outputError(err)
			}
			logIncomplete(log, output.SessionID, output.Conversion)

			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}
			return outputTable(c.App.Writer, c.App.ErrWriter, output.Conversion)
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(store session.Backend) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear a session buffer and last result",
		Flags: []cli.Flag{sessionFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Reset(c.Context, store, ops.ResetInput{SessionID: c.String("session")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(store session.Backend) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a session buffer and last result",
		Flags: []cli.Flag{sessionFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Show(c.Context, store, ops.ShowInput{SessionID: c.String("session")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// sessionsCmd creates the sessions command.
func sessionsCmd(store session.Backend) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List sessions, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, store, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(store session.Backend) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List finish runs of a session",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max runs"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(c.Context, store, ops.HistoryInput{
				SessionID: c.String("session"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(store session.Backend) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete idle sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Idle age, e.g. 7d (0d deletes every session)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, store, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(store session.Backend, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a session's last result to a .tsv file",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.StringFlag{Name: "path", Usage: "Target .tsv (default: ~/.transferbot/exports/<session>-<timestamp>.tsv)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, store, cfg, ops.ExportInput{
				SessionID: c.String("session"),
				Path:      c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(store session.Backend, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(store, cfg, log, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, log)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Convert every .txt listing dropped into a directory",
		Flags: append(runSettingsFlags(),
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: ".", Usage: "Directory to watch"},
		),
		Action: func(c *cli.Context) error {
			settings := runSettings(c)
			handle := func(ctx context.Context, path string) error {
				out, err := ops.ConvertFile(telemetry.WithSource(ctx, "watcher"), cfg, ops.ConvertFileInput{Source: path, RunSettings: settings})
				if err != nil {
					return err
				}
				if out.Incomplete > 0 {
					log.Warn("Listing has incomplete records",
						logger.String("path", path),
						logger.Int("incomplete", out.Incomplete))
				}
				return nil
			}

			w, err := watcher.New(c.String("dir"), handle, watcher.WithLogger(log))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputTable prints the rendered table and sends the hint to stderr.
func outputTable(w, errw io.Writer, conv ops.Conversion) error {
	if conv.Hint != "" && errw != nil {
		fmt.Fprintf(errw, "hint: %s\n", conv.Hint)
	}
	_, err := fmt.Fprintln(w, conv.Table)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	var tErr *errors.TransferError
	if stderrors.As(err, &tErr) {
		msg := tErr.Message
		if outer := err.Error(); outer != tErr.Error() {
			msg = strings.Replace(outer, tErr.Error(), tErr.Message, 1)
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func logIncomplete(log *logger.Logger, sessionID string, conv ops.Conversion) {
	for _, inc := range conv.Incomplete {
		log.Warn("Incomplete transfer record",
			logger.String("session_id", sessionID),
			logger.Int("line", inc.Line),
			logger.Strings("missing", inc.Missing))
	}
}

// inputLimit is the byte budget for one read: max_input_chars runes of up
// to four bytes each.
func inputLimit(cfg *config.Config) int64 {
	chars := config.DefaultConfig().MaxInputChars
	if cfg != nil && cfg.MaxInputChars > 0 {
		chars = cfg.MaxInputChars
	}
	return int64(chars) * 4
}

// readStdin reads all of r, refusing an interactive terminal and input over limit bytes.
func readStdin(r io.Reader, limit int64) (string, error) {
	if f, ok := r.(*os.File); ok {
		stat, err := f.Stat()
		if err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", errors.NewInvalidRequest("text must be piped via stdin")
		}
	}
	return readLimited(r, limit)
}

// readFile reads a listing named on the command line.
func readFile(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFound(path)
		}
		return "", errors.NewInternal(err)
	}
	defer f.Close()
	return readLimited(f, limit)
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInputTooLarge(int(limit), len(data))
	}
	return string(data), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
