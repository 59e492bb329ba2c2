// Package keybind maps terminal keys to macros.
//
// Key specifications use the forms "Ctrl+G", "Alt+x", "F5", "Shift+F5",
// "g", or the bracketed "<C-g>". ParseKey reduces each spec to a canonical
// name and EventName reduces a tcell key event to the same form, so a
// binding matches however it was written.
package keybind
