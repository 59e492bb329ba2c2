package hook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/script"
	scriptlua "github.com/dshills/stormscript/internal/script/lua"
	"github.com/dshills/stormscript/internal/vars"
)

type recordLogger struct {
	warnings []string
}

func (l *recordLogger) Debug(string, ...any) {}
func (l *recordLogger) Info(string, ...any)  {}
func (l *recordLogger) Warn(msg string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(msg, args...))
}
func (l *recordLogger) Error(string, ...any) {}

func newTestDispatcher(t *testing.T) (*Dispatcher, *script.Controller, *recordLogger) {
	t.Helper()
	store := vars.NewStore()
	ev, err := scriptlua.NewEvaluator(store)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	t.Cleanup(ev.Close)
	ctl := script.NewController(buffer.NewRegistry(), store, ev)
	ev.SetCaller(ctl)
	log := &recordLogger{}
	return NewDispatcher(ctl, WithLogger(log)), ctl, log
}

func define(t *testing.T, ctl *script.Controller, name string, arity int, src string) {
	t.Helper()
	if _, err := ctl.Define(name, strings.Split(src, "\n"), arity, ""); err != nil {
		t.Fatalf("Define(%s) error = %v", name, err)
	}
}

func global(ctl *script.Controller, name string) any {
	v, _ := ctl.Vars().Global(name)
	return v
}

func TestDispatchUnbound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	if err := d.Dispatch(context.Background(), Startup, 1); err != nil {
		t.Errorf("Dispatch() error = %v, want nil", err)
	}
}

func TestDispatchWithArguments(t *testing.T) {
	d, ctl, _ := newTestDispatcher(t)
	define(t, ctl, "onload", 2, "seen = args[1] .. args[2] .. narg")
	if err := d.Bind(FileLoad, "onload"); err != nil {
		t.Fatal(err)
	}

	if err := d.Dispatch(context.Background(), FileLoad, 3, "a.txt", 5); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := global(ctl, "seen"); got != lua.LString("a.txt53") {
		t.Errorf("seen = %v, want a.txt53", got)
	}
	if _, ok := d.Bound(FileLoad); !ok {
		t.Error("successful hook was unbound")
	}
}

func TestDispatchOpaqueArgument(t *testing.T) {
	d, ctl, _ := newTestDispatcher(t)
	define(t, ctl, "probe", 1, "kind = type(args[1])")
	if err := d.Bind(Key, "probe"); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), Key, 1, struct{ X int }{1}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := global(ctl, "kind"); got != lua.LString("userdata") {
		t.Errorf("kind = %v, want userdata", got)
	}
}

func TestFalseHookUnboundAfterOneFiring(t *testing.T) {
	d, ctl, log := newTestDispatcher(t)
	define(t, ctl, "guard", script.ArityAny, "count = (count or 0) + 1\nreturn false")
	if err := d.Bind(BufferEnter, "guard"); err != nil {
		t.Fatal(err)
	}

	err := d.Dispatch(context.Background(), BufferEnter, 1)
	var herr *HookError
	if !errors.As(err, &herr) || !errors.Is(err, ErrRejected) {
		t.Fatalf("Dispatch() error = %v, want rejected HookError", err)
	}
	if herr.Hook != BufferEnter || herr.Macro != "guard" {
		t.Errorf("HookError = %+v", herr)
	}
	if _, ok := d.Bound(BufferEnter); ok {
		t.Error("hook still bound")
	}

	if err := d.Dispatch(context.Background(), BufferEnter, 1); err != nil {
		t.Errorf("second Dispatch() error = %v, want nil", err)
	}
	if got := global(ctl, "count"); got != lua.LNumber(1) {
		t.Errorf("count = %v, want 1", got)
	}
	if d.LastMessage() == "" || len(log.warnings) != 1 {
		t.Errorf("LastMessage() = %q, warnings = %q", d.LastMessage(), log.warnings)
	}
}

func TestFailingHookUnbound(t *testing.T) {
	d, ctl, _ := newTestDispatcher(t)
	define(t, ctl, "needs", 1, "return 1")
	if err := d.Bind(Exit, "needs"); err != nil {
		t.Fatal(err)
	}

	err := d.Dispatch(context.Background(), Exit, 1)
	if !errors.Is(err, script.ErrArgCount) {
		t.Fatalf("Dispatch() error = %v, want ErrArgCount", err)
	}
	if _, ok := d.Bound(Exit); ok {
		t.Error("failing hook still bound")
	}
	if !strings.Contains(d.LastMessage(), "argument count") {
		t.Errorf("LastMessage() = %q", d.LastMessage())
	}
}

func TestMissingMacroUnbinds(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	if err := d.Bind(Startup, "nope"); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), Startup, 1); !errors.Is(err, script.ErrMacroNotFound) {
		t.Errorf("Dispatch() error = %v, want ErrMacroNotFound", err)
	}
	if len(d.Hooks()) != 0 {
		t.Errorf("Hooks() = %v, want none", d.Hooks())
	}
}

func TestAbortKeepsHook(t *testing.T) {
	d, ctl, _ := newTestDispatcher(t)
	define(t, ctl, "slow", script.ArityAny, "x = 1")
	if err := d.Bind(Startup, "slow"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Dispatch(ctx, Startup, 1); !script.IsAbort(err) {
		t.Fatalf("Dispatch() error = %v, want abort", err)
	}
	if _, ok := d.Bound(Startup); !ok {
		t.Error("aborted hook was unbound")
	}
}

func TestBindings(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	if err := d.Bind("", "m"); !errors.Is(err, ErrInvalidHook) {
		t.Errorf("Bind(empty) error = %v", err)
	}
	if err := d.Bind(Key, "bad name"); !errors.Is(err, ErrInvalidHook) {
		t.Errorf("Bind(bad macro) error = %v", err)
	}
	_ = d.Bind(Startup, "a")
	_ = d.Bind(Exit, "b")
	if got := strings.Join(d.Hooks(), ","); got != "exit,startup" {
		t.Errorf("Hooks() = %s", got)
	}
	if !d.Unbind(Exit) || d.Unbind(Exit) {
		t.Error("Unbind() should report true once")
	}
	if !IsKnown(FileLoad) || IsKnown("nope") {
		t.Error("IsKnown() mismatch")
	}
}
