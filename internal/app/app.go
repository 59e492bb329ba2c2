// Package app wires the stormscript components together and runs the
// application event loop.
//
// All script execution happens on the goroutine that calls Run (or, before
// Run, on the caller's goroutine). Background producers such as the macro
// file watcher and the terminal console post closures to the loop instead of
// touching the engine directly.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/config"
	"github.com/dshills/stormscript/internal/keybind"
	"github.com/dshills/stormscript/internal/macrofile"
	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/script/hook"
	scriptlua "github.com/dshills/stormscript/internal/script/lua"
	"github.com/dshills/stormscript/internal/vars"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty means defaults and
	// environment only.
	ConfigPath string

	// Config is used instead of loading ConfigPath when set.
	Config *config.Config

	// LogLevel overrides the configured level when set.
	LogLevel string

	// Output receives script print output. Defaults to os.Stdout.
	Output io.Writer

	// LogOutput receives log lines when no log file is configured.
	// Defaults to os.Stderr.
	LogOutput io.Writer

	// Watch enables reloading of changed macro files regardless of the
	// configuration.
	Watch bool
}

// Application is the central coordinator for all stormscript components.
type Application struct {
	cfg     *config.Config
	log     *Logger
	logFile io.Closer

	buffers *buffer.Registry
	store   *vars.Store
	eval    *scriptlua.Evaluator
	ctl     *script.Controller
	hooks   *hook.Dispatcher
	keys    *keybind.Keymap
	macros  *macrofile.Loader
	watcher *macrofile.Watcher
	watch   bool

	current string

	posts    chan func(context.Context) error
	done     chan struct{}
	running  atomic.Bool
	closed   atomic.Bool
	pumpWg   sync.WaitGroup
	closeErr error
}

// New creates an application from opts. Call Start to load macros.
func New(opts Options) (*Application, error) {
	app := &Application{
		posts: make(chan func(context.Context) error, 64),
		done:  make(chan struct{}),
		watch: opts.Watch,
	}
	if err := app.bootstrap(opts); err != nil {
		app.releaseLog()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(opts Options) error {
	// 1. Config
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return &InitError{Component: "config", Err: err}
		}
	}
	app.cfg = cfg
	if cfg.Macros.Watch {
		app.watch = true
	}

	// 2. Logging
	if err := app.setupLogging(opts); err != nil {
		return &InitError{Component: "logging", Err: err}
	}

	// 3. Variables and evaluator
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	caps := make([]scriptlua.Capability, 0, len(cfg.Script.Capabilities))
	for _, c := range cfg.Script.Capabilities {
		caps = append(caps, scriptlua.Capability(c))
	}
	app.buffers = buffer.NewRegistry()
	app.store = vars.NewStore()
	ev, err := scriptlua.NewEvaluator(app.store,
		scriptlua.WithExecutionTimeout(cfg.Script.EvalTimeout.Duration),
		scriptlua.WithOutput(out),
		scriptlua.WithCapabilities(caps...),
	)
	if err != nil {
		return &InitError{Component: "evaluator", Err: err}
	}
	app.eval = ev

	// 4. Controller
	app.ctl = script.NewController(app.buffers, app.store, ev,
		script.WithLimits(cfg.Limits()),
		script.WithLogger(app.log.WithComponent("script")),
	)
	ev.SetCaller(app.ctl)

	// 5. Hooks
	app.hooks = hook.NewDispatcher(app.ctl, hook.WithLogger(app.log.WithComponent("hook")))
	for name, macro := range cfg.Hooks {
		if err := app.hooks.Bind(name, macro); err != nil {
			ev.Close()
			return &InitError{Component: "hooks", Err: err}
		}
	}

	// 6. Keys
	app.keys = keybind.NewKeymap(app.ctl,
		keybind.WithHooks(app.hooks),
		keybind.WithLogger(app.log.WithComponent("keys")),
	)
	if err := app.keys.BindAll(cfg.Keys); err != nil {
		ev.Close()
		return &InitError{Component: "keys", Err: err}
	}

	// 7. Macro files
	app.macros = macrofile.NewLoader(app.ctl,
		macrofile.WithExtension(cfg.Macros.Extension),
		macrofile.WithLogger(app.log.WithComponent("macros")),
	)
	return nil
}

func (app *Application) setupLogging(opts Options) error {
	lc := DefaultLoggerConfig()
	lc.Level = ParseLogLevel(app.cfg.Log.Level)
	if opts.LogLevel != "" {
		lc.Level = ParseLogLevel(opts.LogLevel)
	}
	if opts.LogOutput != nil {
		lc.Output = opts.LogOutput
	}
	if app.cfg.Log.File != "" {
		f, err := os.OpenFile(expandHome(app.cfg.Log.File), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		app.logFile = f
		lc.Output = f
	}
	app.log = NewLogger(lc)
	return nil
}

func (app *Application) releaseLog() {
	if app.logFile != nil {
		_ = app.logFile.Close()
		app.logFile = nil
	}
}

// Start loads the configured macro directories and startup files, starts
// the file watcher when enabled and fires the startup hook. Failing macro
// files are logged and skipped; only a user abort stops Start.
func (app *Application) Start(ctx context.Context) error {
	for _, dir := range app.cfg.Macros.Paths {
		dir = expandHome(dir)
		names, err := app.macros.LoadDir(ctx, dir)
		if script.IsAbort(err) {
			return err
		}
		if err != nil {
			app.log.Warn("%v", &OperationError{Op: "load", Target: dir, Err: err})
		}
		app.log.Debug("%s: %d macros", dir, len(names))
	}

	for _, path := range app.cfg.Macros.Startup {
		if _, err := app.RunFile(ctx, expandHome(path), 1); err != nil {
			if script.IsAbort(err) {
				return err
			}
			app.log.Error("%v", &OperationError{Op: "startup", Target: path, Err: err})
		}
	}

	if app.watch {
		if err := app.startWatcher(); err != nil {
			app.log.Warn("%v", &OperationError{Op: "watch", Err: err})
		}
	}

	return app.fire(ctx, hook.Startup, 1)
}

// fire dispatches a hook. Hook failures are reported by the dispatcher and
// do not fail the caller; a user abort does.
func (app *Application) fire(ctx context.Context, id string, n int, args ...any) error {
	err := app.hooks.Dispatch(ctx, id, n, args...)
	if err == nil || !script.IsAbort(err) {
		return nil
	}
	return err
}

// Eval runs text as a script typed by the user.
func (app *Application) Eval(ctx context.Context, text string, n int) (script.Result, error) {
	return app.ctl.Execute(ctx, text, script.LabelEval, n)
}

// RunFile executes the macro file at path and fires the file-load hook.
func (app *Application) RunFile(ctx context.Context, path string, n int) (script.Result, error) {
	res, err := macrofile.ExecuteFile(ctx, app.ctl, path, n)
	if err != nil {
		return res, err
	}
	return res, app.fire(ctx, hook.FileLoad, 1, path)
}

// Call runs the macro called name with the given argument values.
func (app *Application) Call(ctx context.Context, name string, n int, values ...any) (any, error) {
	args := make([]script.Arg, len(values))
	for i, v := range values {
		args[i] = script.Arg{Token: fmt.Sprint(v), Value: v}
	}
	return app.ctl.Call(ctx, name, n, args)
}

// Visit makes name the current buffer, firing buffer-exit for the previous
// one and buffer-enter for name.
func (app *Application) Visit(ctx context.Context, name string) error {
	if _, ok := app.buffers.Get(name); !ok {
		return fmt.Errorf("%w: %s", buffer.ErrBufferNotFound, name)
	}
	if name == app.current {
		return nil
	}
	if app.current != "" {
		if err := app.fire(ctx, hook.BufferExit, 1, app.current); err != nil {
			return err
		}
	}
	app.current = name
	return app.fire(ctx, hook.BufferEnter, 1, name)
}

// Current returns the current buffer name.
func (app *Application) Current() string {
	return app.current
}

// Format renders a script value for display.
func (app *Application) Format(v any) string {
	return app.eval.Format(v)
}

// Config returns the active configuration.
func (app *Application) Config() *config.Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() *Logger { return app.log }

// Controller returns the invocation controller.
func (app *Application) Controller() *script.Controller { return app.ctl }

// Hooks returns the hook dispatcher.
func (app *Application) Hooks() *hook.Dispatcher { return app.hooks }

// Keys returns the keymap.
func (app *Application) Keys() *keybind.Keymap { return app.keys }

// Macros returns the macro file loader.
func (app *Application) Macros() *macrofile.Loader { return app.macros }

// Close fires the exit hook and releases all resources. It is safe to call
// more than once.
func (app *Application) Close(ctx context.Context) error {
	if !app.closed.CompareAndSwap(false, true) {
		return app.closeErr
	}

	var errs []error
	if err := app.fire(ctx, hook.Exit, 1); err != nil {
		errs = append(errs, err)
	}
	close(app.done)
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.pumpWg.Wait()
	app.eval.Close()
	app.releaseLog()

	app.closeErr = errors.Join(errs...)
	return app.closeErr
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
