// Package vars provides the variable store shared by all running scripts.
//
// Locals live on a single LIFO stack. A running script records the stack
// height when it starts; names declared afterwards belong to it and are
// discarded with Truncate when it finishes. Lookups search downward from
// the top but never below the caller-supplied base, so a script cannot see
// the locals of the script that called it.
//
// Globals live in a separate map and outlive every script.
package vars

import "sync"

type entry struct {
	name  string
	value any
}

// Store holds the local stack and the globals.
type Store struct {
	mu      sync.RWMutex
	locals  []entry
	globals map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{globals: make(map[string]any)}
}

// Height returns the current local stack height.
func (s *Store) Height() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locals)
}

// Declare binds name in the scope starting at base. An existing binding in
// that scope is overwritten instead of shadowed.
func (s *Store) Declare(base int, name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(base, name); i >= 0 {
		s.locals[i].value = value
		return
	}
	s.locals = append(s.locals, entry{name: name, value: value})
}

// Lookup finds name in the scope starting at base.
func (s *Store) Lookup(base int, name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.find(base, name); i >= 0 {
		return s.locals[i].value, true
	}
	return nil, false
}

// Assign updates an existing local in the scope starting at base.
// It reports false when no such local exists.
func (s *Store) Assign(base int, name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(base, name)
	if i < 0 {
		return false
	}
	s.locals[i].value = value
	return true
}

// Truncate pops every local above height.
func (s *Store) Truncate(height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height < 0 {
		height = 0
	}
	if height >= len(s.locals) {
		return
	}
	for i := height; i < len(s.locals); i++ {
		s.locals[i] = entry{}
	}
	s.locals = s.locals[:height]
}

func (s *Store) find(base int, name string) int {
	if base < 0 {
		base = 0
	}
	for i := len(s.locals) - 1; i >= base; i-- {
		if s.locals[i].name == name {
			return i
		}
	}
	return -1
}

// Global returns a global value.
func (s *Store) Global(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.globals[name]
	return v, ok
}

// SetGlobal sets a global value. A nil value deletes it.
func (s *Store) SetGlobal(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.globals, name)
		return
	}
	s.globals[name] = value
}

// Globals returns a copy of all globals.
func (s *Store) Globals() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.globals))
	for k, v := range s.globals {
		out[k] = v
	}
	return out
}
