package script

import (
	"github.com/dshills/stormscript/internal/buffer"
)

// Arity values for Extension.
const (
	// ArityAny accepts any number of arguments.
	ArityAny = -1
	// ArityNone accepts no arguments.
	ArityNone = 0
)

// snapshot is a resolved table together with the lines it was built from.
// Runs hold on to the snapshot they started with.
type snapshot struct {
	lines   []string
	table   *Table
	version uint64
}

// Extension is the per-macro record attached to a buffer.
type Extension struct {
	arity   int
	usage   string
	nesting int
	snap    *snapshot
}

func newExtension() *Extension {
	return &Extension{arity: ArityAny}
}

// Busy reports whether an invocation of the macro is on the call stack.
// It implements buffer.Extension.
func (x *Extension) Busy() bool { return x.nesting > 0 }

// Arity returns the declared argument count.
func (x *Extension) Arity() int { return x.arity }

// Usage returns the usage text.
func (x *Extension) Usage() string { return x.usage }

// Nesting returns how many invocations are active.
func (x *Extension) Nesting() int { return x.nesting }

// Table returns the cached table, or nil when none is cached.
func (x *Extension) Table() *Table {
	if x.snap == nil {
		return nil
	}
	return x.snap.table
}

// Declare sets the argument count and usage text.
func (x *Extension) Declare(arity int, usage string) {
	if arity < ArityAny {
		arity = ArityAny
	}
	x.arity = arity
	x.usage = usage
}

// ExtensionOf returns the extension attached to b, creating it if needed.
func ExtensionOf(b *buffer.Buffer) *Extension {
	if x, ok := b.Extension().(*Extension); ok {
		return x
	}
	x := newExtension()
	b.SetExtension(x)
	return x
}

// compile returns a snapshot matching the buffer's current text, resolving
// it only when the cached one is stale. A stale snapshot is kept while the
// macro is running.
func (x *Extension) compile(b *buffer.Buffer) (*snapshot, error) {
	lines, version := b.Snapshot()
	if x.snap != nil && (x.snap.version == version || x.nesting > 0) {
		return x.snap, nil
	}
	x.snap = nil
	table, err := Resolve(b.Name(), lines)
	if err != nil {
		return nil, err
	}
	x.snap = &snapshot{lines: lines, table: table, version: version}
	return x.snap, nil
}
