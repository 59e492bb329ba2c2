package hook

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/script"
)

// Dispatcher maps hook names to macros and fires them.
type Dispatcher struct {
	ctl *script.Controller
	log script.Logger

	mu    sync.RWMutex
	bound map[string]string
	last  string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger that receives disabled-hook warnings.
func WithLogger(l script.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher creates a dispatcher running macros through ctl.
func NewDispatcher(ctl *script.Controller, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctl:   ctl,
		log:   nopLogger{},
		bound: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bind binds hook to the macro called macro, replacing any binding.
func (d *Dispatcher) Bind(hook, macro string) error {
	if !buffer.ValidName(hook) || !buffer.ValidName(macro) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidHook, hook, macro)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound[hook] = macro
	return nil
}

// Unbind removes the binding of hook.
func (d *Dispatcher) Unbind(hook string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.bound[hook]
	delete(d.bound, hook)
	return ok
}

// Bound returns the macro bound to hook.
func (d *Dispatcher) Bound(hook string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.bound[hook]
	return m, ok
}

// Hooks returns the bound hook names in sorted order.
func (d *Dispatcher) Hooks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.bound))
	for h := range d.bound {
		names = append(names, h)
	}
	sort.Strings(names)
	return names
}

// LastMessage returns the message of the last hook failure.
func (d *Dispatcher) LastMessage() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Dispatch fires the macro bound to hook. It is a no-op when nothing is
// bound.
//
// With arguments, the call is written out as the statement
// "macro arg1,arg2" and run like a typed command, so a hook behaves exactly
// like a user invocation. Without arguments the macro is invoked directly.
//
// If the macro fails or returns false the hook is unbound and a *HookError
// is returned. A user abort is returned as is and leaves the hook bound.
func (d *Dispatcher) Dispatch(ctx context.Context, hook string, n int, args ...any) error {
	macro, ok := d.Bound(hook)
	if !ok {
		return nil
	}

	res, err := d.run(ctx, macro, n, args)
	if err == nil {
		if res.Value == nil || d.ctl.Evaluator().Truthy(res.Value) {
			return nil
		}
		err = ErrRejected
	}
	if script.IsAbort(err) {
		return err
	}

	herr := &HookError{Hook: hook, Macro: macro, Err: err}
	d.mu.Lock()
	if d.bound[hook] == macro {
		delete(d.bound, hook)
	}
	d.last = herr.Error()
	d.mu.Unlock()
	d.log.Warn("%s", herr.Error())
	return herr
}

func (d *Dispatcher) run(ctx context.Context, macro string, n int, args []any) (script.Result, error) {
	if len(args) == 0 {
		b, ok := d.ctl.Buffers().Get(macro)
		if !ok {
			return script.Result{}, fmt.Errorf("%w: %s", script.ErrMacroNotFound, macro)
		}
		return d.ctl.Invoke(ctx, b, n, script.LabelHook, script.FlagHook, nil)
	}

	line, err := d.callLine(macro, n, args)
	if err != nil {
		return script.Result{}, err
	}
	return d.ctl.Execute(ctx, line, script.LabelHook, n)
}

// callLine writes a macro call with literal arguments.
func (d *Dispatcher) callLine(macro string, n int, args []any) (string, error) {
	lits := make([]string, len(args))
	for i, a := range args {
		lit, err := d.ctl.Evaluator().Literal(a)
		if err != nil {
			return "", fmt.Errorf("hook argument %d: %w", i+1, err)
		}
		lits[i] = lit
	}
	line := macro + " " + strings.Join(lits, ",")
	if n != 1 {
		line = strconv.Itoa(n) + " " + line
	}
	return line, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
