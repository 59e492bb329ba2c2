package app

import (
	"context"
	"errors"
	"os"

	"github.com/dshills/stormscript/internal/macrofile"
	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/script/hook"
)

// Post queues fn to run on the event loop. It blocks while the queue is
// full and reports false once the application is closed.
func (app *Application) Post(fn func(context.Context) error) bool {
	select {
	case <-app.done:
		return false
	default:
	}
	select {
	case app.posts <- fn:
		return true
	case <-app.done:
		return false
	}
}

// Run processes posted work until ctx is cancelled, a task returns ErrQuit
// or the application is closed. Task errors are logged; they do not stop
// the loop.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-app.done:
			return ErrClosed
		case fn := <-app.posts:
			err := fn(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrQuit):
				return nil
			case script.IsAbort(err):
				app.log.Info("%v", err)
			default:
				app.log.Error("%v", err)
			}
		}
	}
}

// Running reports whether Run is active.
func (app *Application) Running() bool {
	return app.running.Load()
}

func (app *Application) startWatcher() error {
	w, err := macrofile.NewWatcher(macrofile.WithWatchExtension(app.cfg.Macros.Extension))
	if err != nil {
		return err
	}
	for _, dir := range app.cfg.Macros.Paths {
		dir = expandHome(dir)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			app.log.Warn("%v", &OperationError{Op: "watch", Target: dir, Err: err})
		}
	}
	app.watcher = w

	app.pumpWg.Add(2)
	go func() {
		defer app.pumpWg.Done()
		for ev := range w.Events() {
			ev := ev
			if !app.Post(func(ctx context.Context) error { return app.reload(ctx, ev) }) {
				return
			}
		}
	}()
	go func() {
		defer app.pumpWg.Done()
		for err := range w.Errors() {
			app.log.Warn("%v", &OperationError{Op: "watch", Err: err})
		}
	}()
	return nil
}

// reload applies one macro file change. It runs on the event loop.
func (app *Application) reload(ctx context.Context, ev macrofile.Event) error {
	if ev.Gone() {
		app.log.Info("forgetting %s", ev.Path)
		return app.macros.Forget(ev.Path)
	}
	names, err := app.macros.Reload(ctx, ev.Path)
	if err != nil {
		return &OperationError{Op: "reload", Target: ev.Path, Err: err}
	}
	app.log.Info("reloaded %s: %v", ev.Path, names)
	return app.fire(ctx, hook.FileLoad, 1, ev.Path)
}
