package buffer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds buffers by name.
type Registry struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[string]*Buffer)}
}

// ValidName reports whether name can be used as a buffer name.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t\r\n")
}

// Get returns the buffer registered under name.
func (r *Registry) Get(name string) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[name]
	return b, ok
}

// Create returns the buffer named name, creating an empty one if needed.
func (r *Registry) Create(name string, opts ...Option) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[name]; ok {
		return b
	}
	b := New(name, opts...)
	r.buffers[name] = b
	return b
}

// Add registers b, replacing any idle buffer of the same name.
func (r *Registry) Add(b *Buffer) error {
	if !ValidName(b.Name()) {
		return fmt.Errorf("%w: %q", ErrInvalidName, b.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.buffers[b.Name()]; ok && old != b && old.Busy() {
		return fmt.Errorf("%s: %w", b.Name(), ErrBufferBusy)
	}
	r.buffers[b.Name()] = b
	return nil
}

// Remove discards the buffer named name. Busy buffers are kept.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBufferNotFound, name)
	}
	if b.Busy() {
		return fmt.Errorf("%s: %w", name, ErrBufferBusy)
	}
	delete(r.buffers, name)
	return nil
}

// Names returns all buffer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buffers))
	for name := range r.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered buffers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}
