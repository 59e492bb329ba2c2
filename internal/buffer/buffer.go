package buffer

import (
	"fmt"
	"strings"
	"sync"
)

// Extension is per-buffer state owned by another package.
// Busy reports whether the buffer must not be edited.
type Extension interface {
	Busy() bool
}

// Buffer is a named, versioned list of lines.
type Buffer struct {
	mu       sync.RWMutex
	name     string
	path     string
	lines    []string
	version  uint64
	narrowed bool
	ext      Extension
}

// Option is a functional option for configuring a Buffer.
type Option func(*Buffer)

// WithPath records the file a buffer was loaded from.
func WithPath(path string) Option {
	return func(b *Buffer) {
		b.path = path
	}
}

// WithLines sets the initial content.
func WithLines(lines []string) Option {
	return func(b *Buffer) {
		b.lines = append([]string(nil), lines...)
	}
}

// New creates an empty buffer.
func New(name string, opts ...Option) *Buffer {
	b := &Buffer{name: name, version: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromString creates a buffer whose lines are split from s.
func NewFromString(name, s string, opts ...Option) *Buffer {
	b := New(name, opts...)
	b.lines = SplitLines(s)
	return b
}

// SplitLines normalizes line endings and splits s into lines.
// A single trailing newline does not produce an empty last line.
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Path returns the file the buffer was loaded from, if any.
func (b *Buffer) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// LineCount returns the number of lines.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Line returns the text of line i (0-based).
func (b *Buffer) Line(i int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.lines) {
		return "", fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	return b.lines[i], nil
}

// Lines returns a copy of all lines.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Snapshot returns a copy of the lines together with the version they
// belong to.
func (b *Buffer) Snapshot() ([]string, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out, b.version
}

// Text returns the content joined with newlines.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.lines, "\n")
}

// Version returns a counter that changes whenever the text changes.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Narrowed reports whether the buffer is restricted to a region.
func (b *Buffer) Narrowed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.narrowed
}

// SetNarrowed sets the narrowed flag.
func (b *Buffer) SetNarrowed(narrowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.narrowed = narrowed
}

// Extension returns the attached extension, or nil.
func (b *Buffer) Extension() Extension {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ext
}

// SetExtension attaches ext to the buffer.
func (b *Buffer) SetExtension(ext Extension) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ext = ext
}

// Busy reports whether the buffer is currently executing.
func (b *Buffer) Busy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.busyLocked()
}

func (b *Buffer) busyLocked() bool {
	return b.ext != nil && b.ext.Busy()
}

// SetText replaces the whole content.
func (b *Buffer) SetText(s string) error {
	return b.SetLines(SplitLines(s))
}

// SetLines replaces the whole content with a copy of lines.
func (b *Buffer) SetLines(lines []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busyLocked() {
		return fmt.Errorf("%s: %w", b.name, ErrBufferBusy)
	}
	b.lines = append(b.lines[:0:0], lines...)
	b.version++
	return nil
}

// Append adds a line at the end.
func (b *Buffer) Append(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busyLocked() {
		return fmt.Errorf("%s: %w", b.name, ErrBufferBusy)
	}
	b.lines = append(b.lines, line)
	b.version++
	return nil
}

// ReplaceLine replaces line i.
func (b *Buffer) ReplaceLine(i int, line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.lines) {
		return fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	if b.busyLocked() {
		return fmt.Errorf("%s: %w", b.name, ErrBufferBusy)
	}
	b.lines[i] = line
	b.version++
	return nil
}

// Clear removes all lines.
func (b *Buffer) Clear() error {
	return b.SetLines(nil)
}
