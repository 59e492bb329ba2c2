// Package lua evaluates script statements and expressions with a sandboxed
// gopher-lua state.
//
// Every logical line handed to the evaluator is compiled as a Lua chunk
// whose global environment is resolved dynamically, in this order:
//
//  1. locals of the running macro (the shared variable store, from the
//     frame's base upward)
//  2. the builtins args, argc and narg
//  3. script globals
//  4. the Lua standard library left open by the sandbox
//  5. macros, which are callable as functions
//
// Assigning to a name updates the innermost local of that name or, failing
// that, a script global. "local NAME = EXPR" declares a local of the running
// macro; a plain Lua local would not outlive the line.
//
// A line whose first word names a macro is a macro call:
//
//	[N] NAME [ARG, ARG...]
//
// Each argument is a Lua expression; N, when present, becomes the numeric
// argument of the call.
//
// Square-bracket array literals are accepted as an alternative to table
// constructors, so "for x in [1, 2, 3]" works. Long-bracket strings are not
// supported in statements.
//
// The evaluator is not safe for concurrent use. Nested evaluation, which
// happens when a statement calls a macro, is supported.
package lua
