package lua

import (
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Capability is a permission beyond the default sandbox.
type Capability string

// Available capabilities.
const (
	// CapabilityOS exposes os.clock, os.date, os.difftime, os.getenv and
	// os.time.
	CapabilityOS Capability = "os"
)

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L            *lua.LState
	out          io.Writer
	capabilities map[Capability]bool
}

// NewSandbox creates a sandbox for L. print writes to out.
func NewSandbox(L *lua.LState, out io.Writer) *Sandbox {
	return &Sandbox{
		L:            L,
		out:          out,
		capabilities: make(map[Capability]bool),
	}
}

// Install removes functions that reach outside the state and redirects
// print.
func (s *Sandbox) Install() {
	for _, name := range []string{
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"require",
		"module",
		"collectgarbage",
	} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installPrint()
}

func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		fmt.Fprintln(s.out, strings.Join(parts, "\t"))
		return 0
	}))
}

// Grant enables a capability.
func (s *Sandbox) Grant(c Capability) error {
	switch c {
	case CapabilityOS:
		s.injectOS()
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
	s.capabilities[c] = true
	return nil
}

// HasCapability returns true if the capability is granted.
func (s *Sandbox) HasCapability(c Capability) bool {
	return s.capabilities[c]
}

// injectOS opens the os library and keeps only the read-only functions.
func (s *Sandbox) injectOS() {
	s.L.Push(s.L.NewFunction(lua.OpenOs))
	s.L.Push(lua.LString(lua.OsLibName))
	s.L.Call(1, 0)

	full, ok := s.L.GetGlobal(lua.OsLibName).(*lua.LTable)
	if !ok {
		return
	}
	safe := s.L.NewTable()
	for _, name := range []string{"clock", "date", "difftime", "getenv", "time"} {
		safe.RawSetString(name, full.RawGetString(name))
	}
	s.L.SetGlobal(lua.OsLibName, safe)
}
