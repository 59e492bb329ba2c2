package hook

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected is the cause of a HookError when the macro returned false.
	ErrRejected = errors.New("hook macro returned false")

	// ErrInvalidHook is returned when binding an invalid hook or macro name.
	ErrInvalidHook = errors.New("invalid hook binding")
)

// HookError reports a hook that was unbound after firing.
type HookError struct {
	Hook  string
	Macro string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook '%s' disabled (macro '%s'): %v", e.Hook, e.Macro, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
