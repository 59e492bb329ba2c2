package script

import (
	"errors"
	"fmt"
)

// Errors returned by script operations.
var (
	// ErrUnmatched indicates a block keyword without its partner.
	ErrUnmatched = errors.New("unmatched keyword")

	// ErrArgCount indicates a call with the wrong number of arguments.
	ErrArgCount = errors.New("argument count mismatch")

	// ErrIterationLimit indicates a loop ran more iterations than allowed.
	ErrIterationLimit = errors.New("loop iteration limit exceeded")

	// ErrRecursionLimit indicates a macro nested deeper than allowed.
	ErrRecursionLimit = errors.New("macro recursion limit exceeded")

	// ErrNarrowed indicates an attempt to run a narrowed buffer.
	ErrNarrowed = errors.New("buffer is narrowed")

	// ErrAborted indicates the run was cancelled.
	ErrAborted = errors.New("aborted")

	// ErrInvariant indicates the engine found structure the resolver should
	// have rejected.
	ErrInvariant = errors.New("internal error")

	// ErrNotArray indicates a for loop over a value that is not an array.
	ErrNotArray = errors.New("not an array")

	// ErrMacroNotFound indicates a call to an unknown macro.
	ErrMacroNotFound = errors.New("macro not found")

	// ErrBreakDepth indicates "break N" with fewer than N enclosing loops.
	ErrBreakDepth = errors.New("break level exceeds loop nesting")

	// ErrSyntax indicates a malformed keyword line.
	ErrSyntax = errors.New("syntax error")
)

// Kind classifies a script failure.
type Kind uint8

const (
	// KindRuntime is an ordinary script error.
	KindRuntime Kind = iota
	// KindCompile is a structure error found by Resolve.
	KindCompile
	// KindInvariant is an engine defect signal.
	KindInvariant
	// KindAbort is a user cancellation.
	KindAbort
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRuntime:
		return "runtime"
	case KindCompile:
		return "compile"
	case KindInvariant:
		return "invariant"
	case KindAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Error is a script failure with its location.
type Error struct {
	Kind  Kind
	Label string // "macro", "file", "hook", ...
	Name  string // macro or file name
	Line  int    // 1-based; 0 when unknown
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "script error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == KindInvariant {
		msg = "[" + e.Kind.String() + "] " + msg
	}
	if e.Name == "" {
		return msg
	}
	label := e.Label
	if label == "" {
		label = "macro"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s '%s' at line %d", msg, label, e.Name, e.Line)
	}
	return fmt.Sprintf("%s: %s '%s'", msg, label, e.Name)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Located reports whether location context has been attached.
func (e *Error) Located() bool {
	return e != nil && e.Name != ""
}

// KindOf returns the Kind of err, or KindRuntime when err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRuntime
}

// locate attaches label, name and line to err unless a frame already did.
// The innermost frame reporting a failure wins, so the location names the
// line that failed and outer frames pass it through unchanged.
func locate(err error, label, name string, line int) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Located() {
			return err
		}
		se.Label = label
		se.Name = name
		if se.Line == 0 {
			se.Line = line
		}
		return err
	}
	return &Error{Kind: KindRuntime, Label: label, Name: name, Line: line, Err: err}
}

func invariantf(format string, args ...any) error {
	return &Error{Kind: KindInvariant, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)}
}

func runtimef(sentinel error, format string, args ...any) error {
	return &Error{Kind: KindRuntime, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
