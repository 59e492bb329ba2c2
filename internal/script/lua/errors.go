package lua

import "errors"

// Errors for Lua evaluation.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a statement runs past the
	// configured timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNoCaller is returned for a macro call before SetCaller.
	ErrNoCaller = errors.New("macro calls are not available")
)
