// Package main is the entry point for the stormscript macro runner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/stormscript/internal/app"
	"github.com/dshills/stormscript/internal/config"
	"github.com/dshills/stormscript/internal/script"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exitAborted is the status after a user interrupt.
const exitAborted = 130

type cliOptions struct {
	app         app.Options
	eval        string
	files       []string
	count       int
	interactive bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var console *app.Console
	if opts.interactive {
		screen, err := tcell.NewScreen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
			return 1
		}
		console = app.NewConsole(screen)
		opts.app.Output = console
		opts.app.LogOutput = console
	}

	application, err := app.New(opts.app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	// Ensure cleanup on all exit paths
	defer application.Close(context.Background())

	if err := application.Start(ctx); err != nil {
		return report(err)
	}

	for _, path := range opts.files {
		if _, err := application.RunFile(ctx, path, opts.count); err != nil {
			return report(err)
		}
	}

	if opts.eval != "" {
		res, err := application.Eval(ctx, opts.eval, opts.count)
		if err != nil {
			return report(err)
		}
		if res.Value != nil {
			fmt.Println(application.Format(res.Value))
		}
	}

	switch {
	case console != nil:
		err = console.Run(ctx, application)
	case opts.app.Watch || application.Config().Macros.Watch:
		err = application.Run(ctx)
	}
	if err != nil && !errors.Is(err, app.ErrClosed) {
		return report(err)
	}
	return 0
}

func report(err error) int {
	if script.IsAbort(err) {
		fmt.Fprintln(os.Stderr, "Aborted")
		return exitAborted
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func parseFlags() cliOptions {
	var opts cliOptions
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.app.ConfigPath, "config", config.DefaultPath(), "Path to configuration file")
	flag.StringVar(&opts.app.ConfigPath, "c", config.DefaultPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&opts.app.LogLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	flag.StringVar(&opts.eval, "e", "", "Evaluate a script")
	flag.IntVar(&opts.count, "n", 1, "Repeat count for files and -e")
	flag.BoolVar(&opts.app.Watch, "watch", false, "Reload macro files when they change")
	flag.BoolVar(&opts.interactive, "i", false, "Start the interactive console")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "stormscript - macro and script runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stormscript [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stormscript                   Start the console\n")
		fmt.Fprintf(os.Stderr, "  stormscript build.ksm         Run a macro file\n")
		fmt.Fprintf(os.Stderr, "  stormscript -n 3 -e 'greet'   Run a macro three times\n")
		fmt.Fprintf(os.Stderr, "  stormscript -watch            Keep macro files loaded\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("stormscript %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.app.LogLevel {
	case "", "debug", "info", "warn", "error", "off":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, error or off)\n", opts.app.LogLevel)
		os.Exit(1)
	}
	if opts.count < 1 {
		fmt.Fprintf(os.Stderr, "Error: -n must be at least 1\n")
		os.Exit(1)
	}

	opts.files = flag.Args()
	if len(opts.files) == 0 && opts.eval == "" && !opts.app.Watch {
		opts.interactive = true
	}
	return opts
}
