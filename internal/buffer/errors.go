package buffer

import "errors"

// Errors returned by buffer operations.
var (
	// ErrBufferBusy indicates the buffer is executing and cannot be edited.
	ErrBufferBusy = errors.New("buffer is executing")

	// ErrLineOutOfRange indicates a line index outside the buffer.
	ErrLineOutOfRange = errors.New("line out of range")

	// ErrBufferNotFound indicates no buffer is registered under a name.
	ErrBufferNotFound = errors.New("buffer not found")

	// ErrInvalidName indicates an empty or malformed buffer name.
	ErrInvalidName = errors.New("invalid buffer name")
)
