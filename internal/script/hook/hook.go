// Package hook fires the macro bound to a named editor event.
//
// A hook whose macro fails, or returns false, is unbound for the rest of the
// session so a broken hook cannot fire on every event.
package hook

// Well-known hook names.
const (
	Startup     = "startup"
	BufferEnter = "buffer-enter"
	BufferExit  = "buffer-exit"
	Key         = "key"
	FileLoad    = "file-load"
	Exit        = "exit"
)

// KnownHooks returns the well-known hook names.
func KnownHooks() []string {
	return []string{Startup, BufferEnter, BufferExit, Key, FileLoad, Exit}
}

// IsKnown reports whether name is a well-known hook.
func IsKnown(name string) bool {
	for _, h := range KnownHooks() {
		if h == name {
			return true
		}
	}
	return false
}
