package lua

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/vars"
)

const (
	chunkName = "script"
	maxProtos = 4096
)

// Caller runs macros on behalf of statements. *script.Controller
// implements it.
type Caller interface {
	Call(ctx context.Context, name string, n int, args []script.Arg) (any, error)
	HasMacro(name string) bool
}

type protoKey struct {
	src  string
	expr bool
}

// Evaluator implements script.Evaluator on a sandboxed Lua state.
type Evaluator struct {
	state  *State
	store  *vars.Store
	caller Caller
	bridge *Bridge

	env    *lua.LTable
	protos map[protoKey]*lua.FunctionProto

	// Per-evaluation state, saved and restored around nested calls.
	ctx   context.Context
	frame *script.Frame
	depth int

	// pending carries a Go error raised through Lua so its type survives
	// the protected call.
	pending error

	stash  *lua.LTable
	stashN int
}

var _ script.Evaluator = (*Evaluator)(nil)

// NewEvaluator creates an evaluator over store.
func NewEvaluator(store *vars.Store, opts ...StateOption) (*Evaluator, error) {
	state, err := NewState(opts...)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		state:  state,
		store:  store,
		bridge: NewBridge(state.L),
		protos: make(map[protoKey]*lua.FunctionProto),
		stash:  state.L.NewTable(),
	}

	L := state.L
	e.env = L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(e.index))
	mt.RawSetString("__newindex", L.NewFunction(e.newindex))
	L.SetMetatable(e.env, mt)
	return e, nil
}

// SetCaller sets the macro runner used for macro-call statements.
func (e *Evaluator) SetCaller(c Caller) {
	e.caller = c
}

// State returns the underlying state.
func (e *Evaluator) State() *State {
	return e.state
}

// Close releases the Lua state.
func (e *Evaluator) Close() {
	e.state.Close()
}

// Eval evaluates one logical line. terminator starts a trailing comment.
func (e *Evaluator) Eval(ctx context.Context, f *script.Frame, text, terminator string) (any, error) {
	if e.state.Closed() {
		return nil, ErrStateClosed
	}
	if f == nil {
		return nil, errors.New("lua: evaluation without a frame")
	}
	src := stripComment(text, terminator)
	if src == "" {
		return nil, nil
	}

	prevCtx, prevFrame := e.ctx, e.frame
	e.ctx, e.frame = ctx, f
	defer func() {
		e.ctx, e.frame = prevCtx, prevFrame
	}()

	runCtx := ctx
	if e.depth == 0 {
		if ctx.Err() != nil {
			return nil, abortError()
		}
		if d := e.state.executionTimeout; d > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		e.state.L.SetContext(runCtx)
		defer func() {
			e.state.L.RemoveContext()
			e.clearStash()
		}()
	}
	e.depth++
	defer func() { e.depth-- }()

	v, err := e.eval(ctx, f, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortError()
		}
		if runCtx.Err() != nil && script.KindOf(err) != script.KindAbort {
			return nil, fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
		return nil, err
	}
	return v, nil
}

func abortError() error {
	return &script.Error{Kind: script.KindAbort, Err: script.ErrAborted}
}

func (e *Evaluator) eval(ctx context.Context, f *script.Frame, src string) (any, error) {
	if m := localFunc.FindStringSubmatch(src); m != nil {
		fn, err := e.compile("function"+m[2], true)
		if err != nil {
			return nil, err
		}
		vals, err := e.run(fn, 1)
		if err != nil {
			return nil, err
		}
		e.store.Declare(f.Base, m[1], vals[0])
		return nil, nil
	}
	if m := localDecl.FindStringSubmatch(src); m != nil {
		return e.declare(f, strings.Split(m[1], ","), m[2])
	}
	if name, n, rest, ok := e.macroCall(f, src); ok {
		return e.callMacro(ctx, name, n, rest)
	}

	fn, err := e.compile(src, false)
	if err != nil {
		return nil, err
	}
	vals, err := e.run(fn, 1)
	if err != nil {
		return nil, err
	}
	return result(vals[0]), nil
}

// declare binds "local a, b = x, y". The value of the first name is the
// statement's result.
func (e *Evaluator) declare(f *script.Frame, names []string, rhs string) (any, error) {
	var vals []lua.LValue
	if rhs = strings.TrimSpace(rhs); rhs != "" {
		fn, err := e.compile(rhs, true)
		if err != nil {
			return nil, err
		}
		vals, err = e.run(fn, lua.MultRet)
		if err != nil {
			return nil, err
		}
	}
	for i, name := range names {
		var v lua.LValue = lua.LNil
		if i < len(vals) {
			v = vals[i]
		}
		e.store.Declare(f.Base, strings.TrimSpace(name), v)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return result(vals[0]), nil
}

// macroCall recognises "[N] NAME [ARGS]" when NAME is a macro that no
// local shadows.
func (e *Evaluator) macroCall(f *script.Frame, src string) (string, int, string, bool) {
	if e.caller == nil {
		return "", 0, "", false
	}
	n := 1
	word, rest := splitWord(src)
	if v, err := strconv.Atoi(word); err == nil && rest != "" {
		n = v
		word, rest = splitWord(rest)
	} else if err == nil {
		return "", 0, "", false
	}
	if !isName(word) || callLike(rest) || !e.caller.HasMacro(word) {
		return "", 0, "", false
	}
	if _, ok := e.store.Lookup(f.Base, word); ok {
		return "", 0, "", false
	}
	if _, ok := e.store.Global(word); ok {
		return "", 0, "", false
	}
	return word, n, rest, true
}

func (e *Evaluator) callMacro(ctx context.Context, name string, n int, rest string) (any, error) {
	tokens := splitArgs(rest)
	args := make([]script.Arg, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%w: empty argument in call to '%s'", script.ErrSyntax, name)
		}
		fn, err := e.compile(tok, true)
		if err != nil {
			return nil, err
		}
		vals, err := e.run(fn, 1)
		if err != nil {
			return nil, err
		}
		args = append(args, script.Arg{Token: tok, Value: vals[0]})
	}
	return e.caller.Call(ctx, name, n, args)
}

// compile returns a function for src bound to the dynamic environment.
// Unless expr is set, src is tried as an expression first and then as a
// statement.
func (e *Evaluator) compile(src string, expr bool) (*lua.LFunction, error) {
	key := protoKey{src: src, expr: expr}
	proto, ok := e.protos[key]
	if !ok {
		code := translateArrays(src)
		var err error
		proto, err = compileChunk("return " + code)
		if err != nil && !expr {
			proto, err = compileChunk(code)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", script.ErrSyntax, err)
		}
		if len(e.protos) >= maxProtos {
			clear(e.protos)
		}
		e.protos[key] = proto
	}
	fn := e.state.L.NewFunctionFromProto(proto)
	fn.Env = e.env
	return fn, nil
}

func compileChunk(code string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(code), chunkName)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, chunkName)
}

// run calls fn and returns its results. nret may be lua.MultRet.
func (e *Evaluator) run(fn *lua.LFunction, nret int) (vals []lua.LValue, err error) {
	L := e.state.L
	top := L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			L.SetTop(top)
			vals, err = nil, fmt.Errorf("lua panic: %v", r)
		}
	}()

	e.pending = nil
	L.Push(fn)
	if err := L.PCall(0, nret, nil); err != nil {
		L.SetTop(top)
		return nil, e.luaError(err)
	}
	n := L.GetTop() - top
	vals = make([]lua.LValue, n)
	for i := range vals {
		vals[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	if nret == 1 && n == 0 {
		vals = []lua.LValue{lua.LNil}
	}
	return vals, nil
}

// luaError recovers the Go error behind a Lua error when there is one.
func (e *Evaluator) luaError(err error) error {
	msg := err.Error()
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	if p := e.pending; p != nil {
		e.pending = nil
		if strings.Contains(msg, p.Error()) {
			return p
		}
	}
	return errors.New(msg)
}

// index resolves a free name read by a statement.
func (e *Evaluator) index(L *lua.LState) int {
	key, ok := L.Get(2).(lua.LString)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.lookup(string(key)))
	return 1
}

func (e *Evaluator) lookup(name string) lua.LValue {
	if f := e.frame; f != nil {
		if v, ok := e.store.Lookup(f.Base, name); ok {
			return e.toLua(v)
		}
		switch name {
		case "args":
			t := e.state.L.CreateTable(len(f.Args), 0)
			for _, a := range f.Args {
				t.Append(e.toLua(a.Value))
			}
			return t
		case "argc":
			return lua.LNumber(len(f.Args))
		case "narg":
			return lua.LNumber(f.N)
		}
	}
	if name == stashName {
		return e.stash
	}
	if v, ok := e.store.Global(name); ok {
		return e.toLua(v)
	}
	if v := e.state.L.GetGlobal(name); v != lua.LNil {
		return v
	}
	if e.caller != nil && e.caller.HasMacro(name) {
		return e.macroFunc(name)
	}
	return lua.LNil
}

// newindex assigns to the innermost local of that name, or a global.
func (e *Evaluator) newindex(L *lua.LState) int {
	key, ok := L.Get(2).(lua.LString)
	if !ok {
		L.RaiseError("cannot assign to %s", L.Get(2).String())
		return 0
	}
	name, v := string(key), L.Get(3)
	if f := e.frame; f != nil && e.store.Assign(f.Base, name, v) {
		return 0
	}
	if v == lua.LNil {
		e.store.SetGlobal(name, nil)
		return 0
	}
	e.store.SetGlobal(name, v)
	return 0
}

// macroFunc returns a Lua function that calls the macro name with n = 1.
func (e *Evaluator) macroFunc(name string) *lua.LFunction {
	return e.state.L.NewFunction(func(L *lua.LState) int {
		args := make([]script.Arg, L.GetTop())
		for i := range args {
			v := L.Get(i + 1)
			args[i] = script.Arg{Token: v.String(), Value: v}
		}
		if e.caller == nil {
			e.pending = ErrNoCaller
			L.RaiseError("%s", ErrNoCaller.Error())
			return 0
		}
		ctx := e.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		v, err := e.caller.Call(ctx, name, 1, args)
		if err != nil {
			e.pending = err
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(e.toLua(v))
		return 1
	})
}

// Truthy reports Lua truthiness: only nil and false are false.
func (e *Evaluator) Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case lua.LValue:
		return lua.LVAsBool(x)
	case bool:
		return x
	}
	return true
}

// Elements returns the items of an array-like table.
func (e *Evaluator) Elements(v any) ([]any, bool) {
	switch x := v.(type) {
	case *lua.LTable:
		items, ok := arrayItems(x)
		if !ok {
			return nil, false
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	case []any:
		return x, true
	}
	return nil, false
}

// Bind declares name as a local of f.
func (e *Evaluator) Bind(f *script.Frame, name string, v any) error {
	e.store.Declare(f.Base, name, e.toLua(v))
	return nil
}

// GoValue converts an evaluation result to a plain Go value.
func (e *Evaluator) GoValue(v any) any {
	if lv, ok := v.(lua.LValue); ok {
		return e.bridge.ToGoValue(lv)
	}
	return v
}

// Format renders an evaluation result for display.
func (e *Evaluator) Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case lua.LValue:
		return e.state.L.ToStringMeta(x).String()
	}
	return fmt.Sprint(v)
}

func (e *Evaluator) toLua(v any) lua.LValue {
	if lv, ok := v.(lua.LValue); ok {
		return lv
	}
	return e.bridge.ToLuaValue(v)
}

// result maps Lua nil to a Go nil so callers can test for "no value".
func result(v lua.LValue) any {
	if v == nil || v == lua.LNil {
		return nil
	}
	return v
}
