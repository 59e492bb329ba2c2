package script

import "context"

// Arg is one call-site argument: the source token it came from and its
// evaluated value.
type Arg struct {
	Token string
	Value any
}

// Frame is the run context of one active invocation.
type Frame struct {
	// ID identifies the invocation in logs.
	ID string
	// Label describes how the macro was reached ("macro", "hook", ...).
	Label string
	// Name is the macro or buffer name.
	Name string
	// Args are the bound call arguments.
	Args []Arg
	// N is the numeric argument.
	N int
	// Base is the local variable stack height at entry. Locals at or above
	// Base belong to this frame.
	Base int
	// Depth is the frame's position in the call stack, starting at 1.
	Depth int
	// Flags are the invocation flags.
	Flags Flags
}

// Values returns the argument values.
func (f *Frame) Values() []any {
	out := make([]any, len(f.Args))
	for i, a := range f.Args {
		out[i] = a.Value
	}
	return out
}

// Evaluator evaluates statement and expression text for the engine.
type Evaluator interface {
	// Eval evaluates one logical line in frame f. terminator marks the
	// start of a trailing comment. A false result is not an error.
	Eval(ctx context.Context, f *Frame, text, terminator string) (any, error)

	// Truthy coerces a value to a boolean.
	Truthy(v any) bool

	// Elements returns the items of an array value.
	Elements(v any) ([]any, bool)

	// Bind sets the local variable name in frame f.
	Bind(f *Frame, name string, v any) error

	// Literal encodes v as source text that evaluates back to v.
	Literal(v any) (string, error)
}
