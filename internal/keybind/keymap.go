package keybind

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/script/hook"
)

// Caller runs a macro by name. *script.Controller satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, n int, args []script.Arg) (any, error)
}

// HookDispatcher fires hooks. *hook.Dispatcher satisfies it.
type HookDispatcher interface {
	Dispatch(ctx context.Context, hookID string, n int, args ...any) error
}

// Logger is the logging surface the keymap needs.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Keymap binds canonical key names to macro names.
type Keymap struct {
	mu       sync.RWMutex
	ctl      Caller
	hooks    HookDispatcher
	log      Logger
	bindings map[string]string
}

// Option configures a Keymap.
type Option func(*Keymap)

// WithHooks fires the key hook with the key name before each binding runs.
func WithHooks(d HookDispatcher) Option {
	return func(k *Keymap) {
		k.hooks = d
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(k *Keymap) {
		if l != nil {
			k.log = l
		}
	}
}

// NewKeymap creates an empty keymap running macros through ctl.
func NewKeymap(ctl Caller, opts ...Option) *Keymap {
	k := &Keymap{
		ctl:      ctl,
		log:      nopLogger{},
		bindings: make(map[string]string),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Bind binds the key spec to macro, replacing any earlier binding.
func (k *Keymap) Bind(spec, macro string) error {
	name, err := ParseKey(spec)
	if err != nil {
		return err
	}
	if !buffer.ValidName(macro) {
		return fmt.Errorf("%w: %q", buffer.ErrInvalidName, macro)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.bindings[name] = macro
	return nil
}

// BindAll binds every entry of specs and returns all failures joined.
func (k *Keymap) BindAll(specs map[string]string) error {
	keys := make([]string, 0, len(specs))
	for spec := range specs {
		keys = append(keys, spec)
	}
	sort.Strings(keys)

	var errs []error
	for _, spec := range keys {
		if err := k.Bind(spec, specs[spec]); err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", spec, err))
		}
	}
	return errors.Join(errs...)
}

// Unbind removes the binding for spec and reports whether one existed.
func (k *Keymap) Unbind(spec string) bool {
	name, err := ParseKey(spec)
	if err != nil {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.bindings[name]
	delete(k.bindings, name)
	return ok
}

// Lookup returns the macro bound to spec.
func (k *Keymap) Lookup(spec string) (string, bool) {
	name, err := ParseKey(spec)
	if err != nil {
		return "", false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	macro, ok := k.bindings[name]
	return macro, ok
}

// Bindings returns a copy of the bindings keyed by canonical key name.
func (k *Keymap) Bindings() map[string]string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]string, len(k.bindings))
	for key, macro := range k.bindings {
		out[key] = macro
	}
	return out
}

// Handle fires the key hook and runs the macro bound to ev, n times over.
// It reports whether a binding existed. Hook failures other than a user
// abort do not stop the binding; the dispatcher has already reported them.
func (k *Keymap) Handle(ctx context.Context, ev *tcell.EventKey, n int) (bool, error) {
	name := EventName(ev)

	if k.hooks != nil {
		if err := k.hooks.Dispatch(ctx, hook.Key, 1, name); err != nil && script.IsAbort(err) {
			return false, err
		}
	}

	k.mu.RLock()
	macro, ok := k.bindings[name]
	k.mu.RUnlock()
	if !ok {
		return false, nil
	}

	k.log.Debug("key %s runs '%s'", name, macro)
	_, err := k.ctl.Call(ctx, macro, n, nil)
	return true, err
}
