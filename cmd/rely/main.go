// Command rely inspects and resolves the dependencies of a rely
// setup from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aegistudio/rely"
	"github.com/aegistudio/rely/config"
	"github.com/aegistudio/rely/internal/ctxlog"
	"github.com/aegistudio/rely/serpent"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	baseDir       string
	noAutoRequire bool
	setup         string
	envFiles      []string
	logLevel      string
	logFormat     string
}

// run builds the command tree and executes it with args.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	flags := &rootFlags{}
	var setup *config.Setup
	var logger *slog.Logger

	cmd := &cobra.Command{
		Use:           "rely",
		Short:         "Inspect and resolve rely dependencies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = newLogger(flags.logLevel, flags.logFormat, stderr)
			options, err := config.FromEnv(flags.envFiles...)
			if err != nil {
				return err
			}
			if flags.setup != "" {
				if setup, err = config.LoadSetup(flags.setup); err != nil {
					return err
				}
				options = setup.Apply(options)
			}
			if cmd.Flags().Changed("base-dir") {
				options.BaseDirectory = flags.baseDir
			}
			if flags.noAutoRequire {
				options.AutoRequire = false
			}
			logger.Debug("container options",
				"base_directory", options.BaseDirectory,
				"auto_require", options.AutoRequire)
			return serpent.AddOption(cmd,
				rely.WithOptions(options), rely.WithLogger(logger))
		},
		PreRunE: serpent.Executor(func(c *rely.Container) error {
			if setup == nil {
				return nil
			}
			return c.SetupBulk(setup.Dependencies)
		}).PreRunE,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.baseDir, "base-dir", "",
		"directory module files resolve against (default: working directory)")
	pf.BoolVar(&flags.noAutoRequire, "no-auto-require", false,
		"fail on unknown names instead of importing them")
	pf.StringVarP(&flags.setup, "setup", "f", "",
		"setup file (.yaml, .yml, .json or .hcl)")
	pf.StringSliceVar(&flags.envFiles, "env-file", []string{".env"},
		"dotenv files to load")
	pf.StringVar(&flags.logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "",
		"log format (text, json), text if stderr is a terminal")

	withLogger := func(ctx context.Context) context.Context {
		return ctxlog.WithLogger(ctx, logger)
	}
	cmd.AddCommand(newGetCommand(withLogger))
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newParamsCommand())
	return serpent.ExecuteContext(ctx, cmd)
}

// newLogger creates the logger writing to w, falling back to the
// text format on terminals and JSON elsewhere.
func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	if formatStr == "" {
		formatStr = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			formatStr = "text"
		}
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}
