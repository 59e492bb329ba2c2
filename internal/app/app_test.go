package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/config"
	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/script/hook"
)

// syncBuffer is a bytes.Buffer safe for the watcher goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testApp struct {
	*Application
	out  *syncBuffer
	logs *syncBuffer
}

func newTestApp(t *testing.T, mutate func(*config.Config), opts ...func(*Options)) *testApp {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	out, logs := &syncBuffer{}, &syncBuffer{}
	o := Options{Config: cfg, Output: out, LogOutput: logs, LogLevel: "debug"}
	for _, opt := range opts {
		opt(&o)
	}
	app, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return &testApp{Application: app, out: out, logs: logs}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
	return path
}

func global(app *Application, name string) any {
	v, _ := app.Controller().Vars().Global(name)
	return v
}

// runLoop runs the event loop in the background until the test ends.
func runLoop(t *testing.T, app *Application) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// onLoop runs fn on the event loop and waits for it.
func onLoop(t *testing.T, app *Application, fn func(ctx context.Context)) {
	t.Helper()
	finished := make(chan struct{})
	ok := app.Post(func(ctx context.Context) error {
		fn(ctx)
		close(finished)
		return nil
	})
	if !ok {
		t.Fatal("Post() = false")
	}
	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("posted work did not run")
	}
}

const libSource = `macro boot
booted = true
endmacro

macro add 2 "add A B"
return args[1] + args[2]
endmacro

macro on_buffer 1
visits = (visits or "") .. args[1] .. ";"
endmacro
`

func TestNewBindsConfiguration(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Hooks[hook.Startup] = "boot"
		c.Keys["<C-g>"] = "add"
	})

	if m, ok := app.Hooks().Bound(hook.Startup); !ok || m != "boot" {
		t.Errorf("startup hook = %q, %v", m, ok)
	}
	if m, ok := app.Keys().Lookup("Ctrl+G"); !ok || m != "add" {
		t.Errorf("Ctrl+G = %q, %v", m, ok)
	}
	if app.Controller().Limits() != app.Config().Limits() {
		t.Errorf("controller limits = %+v", app.Controller().Limits())
	}
}

func TestNewInitErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		component string
	}{
		{"hook", func(c *config.Config) { c.Hooks["startup"] = "two words" }, "hooks"},
		{"key", func(c *config.Config) { c.Keys["Nope+X"] = "m" }, "keys"},
		{"capability", func(c *config.Config) { c.Script.Capabilities = []string{"io"} }, "evaluator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			_, err := New(Options{Config: cfg, Output: io.Discard, LogOutput: io.Discard})
			var ie *InitError
			if !errors.As(err, &ie) || ie.Component != tt.component {
				t.Errorf("New() error = %v, want InitError for %s", err, tt.component)
			}
		})
	}
}

func TestNewLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[script]\nmax_macro_depth = 7\n")

	app, err := New(Options{ConfigPath: path, Output: io.Discard, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close(context.Background())
	if app.Controller().Limits().MaxMacroDepth != 7 {
		t.Errorf("MaxMacroDepth = %d, want 7", app.Controller().Limits().MaxMacroDepth)
	}

	bad := writeFile(t, dir, "bad.toml", "[script]\nmax_macro_depth = 0\n")
	if _, err := New(Options{ConfigPath: bad, Output: io.Discard, LogOutput: io.Discard}); !errors.Is(err, config.ErrValidationFailed) {
		t.Errorf("New(bad config) error = %v, want ErrValidationFailed", err)
	}
}

func TestStart(t *testing.T) {
	macros := t.TempDir()
	writeFile(t, macros, "lib.ksm", libSource)
	writeFile(t, macros, "broken.ksm", "x = nil .. 1\n")
	startup := writeFile(t, t.TempDir(), "init.ksm", "print(\"starting\")\nstarted = add(1, 2)\n")

	app := newTestApp(t, func(c *config.Config) {
		c.Macros.Paths = []string{macros, filepath.Join(macros, "missing")}
		c.Macros.Startup = []string{startup}
		c.Hooks[hook.Startup] = "boot"
	})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !app.Controller().HasMacro("add") {
		t.Error("library macros were not loaded")
	}
	if !strings.Contains(app.out.String(), "starting") {
		t.Errorf("output = %q", app.out.String())
	}
	if v := app.Format(global(app.Application, "started")); v != "3" {
		t.Errorf("started = %s, want 3", v)
	}
	if v := app.Format(global(app.Application, "booted")); v != "true" {
		t.Errorf("booted = %s, want startup hook to run", v)
	}
	if !strings.Contains(app.logs.String(), "broken.ksm") {
		t.Errorf("logs = %q, want the broken file reported", app.logs.String())
	}
}

func TestEvalAndCall(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	res, err := app.Eval(ctx, "1 + 2", 1)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if got := app.Format(res.Value); got != "3" {
		t.Errorf("Format() = %q, want 3", got)
	}

	if _, err := app.Eval(ctx, libSource, 1); err != nil {
		t.Fatalf("Eval(lib) error = %v", err)
	}
	v, err := app.Call(ctx, "add", 1, int64(2), int64(5))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := app.Format(v); got != "7" {
		t.Errorf("add = %s, want 7", got)
	}

	if _, err := app.Call(ctx, "add", 1, int64(2)); !errors.Is(err, script.ErrArgCount) {
		t.Errorf("Call() with one arg error = %v, want ErrArgCount", err)
	}
}

func TestVisitFiresBufferHooks(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Hooks[hook.BufferEnter] = "on_buffer"
		c.Hooks[hook.BufferExit] = "on_buffer"
	})
	ctx := context.Background()
	if _, err := app.Eval(ctx, libSource, 1); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes", "todo"} {
		if _, err := app.Controller().Define(name, nil, script.ArityAny, ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := app.Visit(ctx, "notes"); err != nil {
		t.Fatalf("Visit(notes) error = %v", err)
	}
	if err := app.Visit(ctx, "notes"); err != nil {
		t.Fatalf("second Visit(notes) error = %v", err)
	}
	if err := app.Visit(ctx, "todo"); err != nil {
		t.Fatalf("Visit(todo) error = %v", err)
	}
	if v := app.Format(global(app.Application, "visits")); v != "notes;notes;todo;" {
		t.Errorf("visits = %s", v)
	}
	if app.Current() != "todo" {
		t.Errorf("Current() = %q", app.Current())
	}
	if err := app.Visit(ctx, "nowhere"); !errors.Is(err, buffer.ErrBufferNotFound) {
		t.Errorf("Visit(nowhere) error = %v", err)
	}
}

func TestRunFileFiresFileLoad(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Hooks[hook.FileLoad] = "on_buffer"
	})
	ctx := context.Background()
	if _, err := app.Eval(ctx, libSource, 1); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, t.TempDir(), "one.ksm", "ran = true\n")

	if _, err := app.RunFile(ctx, path, 1); err != nil {
		t.Fatalf("RunFile() error = %v", err)
	}
	if app.Format(global(app.Application, "ran")) != "true" {
		t.Error("file did not run")
	}
	if v := app.Format(global(app.Application, "visits")); v != path+";" {
		t.Errorf("file-load hook saw %s, want %s", v, path)
	}
}

func TestRunLoop(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	var nested error
	app.Post(func(context.Context) error { return errors.New("task failed") })
	app.Post(func(ctx context.Context) error {
		nested = app.Run(ctx)
		return nil
	})
	app.Post(func(context.Context) error { return ErrQuit })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil after ErrQuit", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
	if !errors.Is(nested, ErrAlreadyRunning) {
		t.Errorf("nested Run() error = %v, want ErrAlreadyRunning", nested)
	}
	if !strings.Contains(app.logs.String(), "task failed") {
		t.Errorf("logs = %q, want the failed task", app.logs.String())
	}
	if app.Running() {
		t.Error("Running() after Run returned")
	}
}

func TestWatchReloadsMacros(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.ksm", "macro old\nreturn 1\nendmacro\n")

	app := newTestApp(t, func(c *config.Config) {
		c.Macros.Paths = []string{dir}
		c.Macros.Watch = true
	})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	runLoop(t, app.Application)

	writeFile(t, dir, "lib.ksm", "macro fresh\nreturn 2\nendmacro\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		var fresh, old bool
		onLoop(t, app.Application, func(context.Context) {
			fresh = app.Controller().HasMacro("fresh")
			old = app.Controller().HasMacro("old")
		})
		if fresh && !old {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reload not applied: fresh=%v old=%v", fresh, old)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCloseFiresExit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Hooks[hook.Exit] = "on_buffer"
	})
	if _, err := app.Eval(context.Background(), libSource, 1); err != nil {
		t.Fatal(err)
	}

	if err := app.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if v := global(app.Application, "visits"); v != nil {
		// The exit hook takes no arguments, so on_buffer fails its arity
		// check and is disabled instead of running.
		t.Errorf("visits = %v", v)
	}
	if app.Hooks().LastMessage() == "" {
		t.Error("failed exit hook left no message")
	}
	if err := app.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if app.Post(func(context.Context) error { return nil }) {
		t.Error("Post() after Close = true")
	}
}
