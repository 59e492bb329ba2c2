package lua

import (
	"io"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout disables the per-statement timeout.
const DefaultExecutionTimeout time.Duration = 0

// State wraps a gopher-lua state opened with the safe libraries only.
//
// gopher-lua's LState is not goroutine-safe. A State must be used from a
// single goroutine.
type State struct {
	L *lua.LState

	executionTimeout time.Duration
	output           io.Writer
	capabilities     []Capability

	sandbox *Sandbox
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds each top-level evaluation, including the
// macros it calls. Zero disables the timeout.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithOutput sets where print writes.
func WithOutput(w io.Writer) StateOption {
	return func(s *State) {
		if w != nil {
			s.output = w
		}
	}
}

// WithCapabilities grants sandbox capabilities.
func WithCapabilities(caps ...Capability) StateOption {
	return func(s *State) {
		s.capabilities = append(s.capabilities, caps...)
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		executionTimeout: DefaultExecutionTimeout,
		output:           io.Discard,
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L, state.output)
	state.sandbox.Install()
	for _, c := range state.capabilities {
		if err := state.sandbox.Grant(c); err != nil {
			L.Close()
			return nil, err
		}
	}

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Closed returns true if the state has been closed.
func (s *State) Closed() bool {
	return s.closed
}

// Close releases the Lua state. It is safe to call more than once.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}
