// Package macrofile loads macro source files.
//
// A macro file is a script. Running it evaluates its top-level statements
// and its macro ... endmacro blocks define macros, so a directory of files
// acts as a macro library. Loader remembers which macros each file defined
// so that a changed file can be reloaded and a deleted one forgotten.
// Watcher reports changes to macro files using fsnotify.
package macrofile
