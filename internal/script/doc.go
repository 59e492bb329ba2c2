// Package script implements the macro language execution engine.
//
// A macro is a named buffer of script lines. Running one takes three steps:
//
//   - Resolve scans the lines once and builds a Table that pairs every loop
//     opener (while, until, for, loop) and every break/next with its
//     endloop, plus the chain of enclosing endloops used by "break N".
//     The table is cached on the buffer's Extension until the text changes.
//   - The engine walks the lines with a stack of execution levels, one per
//     open if or loop. Lines that are not keywords are handed to an
//     Evaluator together with the running Frame.
//   - The Controller binds arguments, bounds recursion, pushes a Frame and
//     unwinds everything the call created on every exit path.
//
// # Language
//
//	-- comment
//	if COND [then]          elsif COND [then]       else      endif
//	while COND [do]         until COND [do]         loop      endloop
//	for VAR in EXPR [do]    break [N]               next
//	return [EXPR]
//	macro NAME [ARITY] [USAGE...]   ...raw lines...   endmacro
//
// A line ending in a backslash continues on the next line. Any other line is
// a statement evaluated by the Evaluator.
//
// # Errors
//
// Failures are reported as *Error carrying a Kind (compile, runtime,
// invariant, abort) and the location "<label> '<name>' at line N", attached
// once by the first frame that sees the failure.
//
// # Threading
//
// A Controller and everything it drives must be used from one goroutine.
package script
