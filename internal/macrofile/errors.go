package macrofile

import "errors"

var (
	// ErrNotMacroFile is returned for a path without the macro extension.
	ErrNotMacroFile = errors.New("not a macro file")

	// ErrWatcherClosed is returned when operating on a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")
)
