package script

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dshills/stormscript/internal/buffer"
)

// capture collects the raw lines of a nested macro definition.
type capture struct {
	target *buffer.Buffer // nil when the definition is being skipped
	arity  int
	usage  string
	depth  int
	line   int
	lines  []string
}

// engine interprets one invocation of a macro.
type engine struct {
	ctl   *Controller
	frame *Frame
	table *Table
	cur   cursor
	stack levelStack

	// carry holds a loop level popped by endloop until its opener
	// re-tests it.
	carry *level
	cap   *capture

	result   any
	returned bool
}

func newEngine(ctl *Controller, frame *Frame, snap *snapshot) *engine {
	return &engine{
		ctl:   ctl,
		frame: frame,
		table: snap.table,
		cur:   cursor{lines: snap.lines},
		stack: newLevelStack(),
	}
}

// run executes lines until the end of the macro, a return, or a failure.
func (e *engine) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindAbort, Line: e.cur.pc + 1, Err: ErrAborted}
		}

		line, text, ok := e.cur.next()
		if !ok {
			break
		}

		if err := e.step(ctx, line, text); err != nil {
			return e.fail(line, err)
		}
		if e.returned {
			return nil
		}
	}

	if e.cap != nil {
		return e.fail(e.cap.line, invariantf("'macro' without 'endmacro'"))
	}
	if !e.stack.atRoot() {
		return e.fail(len(e.cur.lines)-1, invariantf("%d block(s) left open", e.stack.depth()-1))
	}
	return nil
}

// fail attaches the line to err unless it already carries a location.
func (e *engine) fail(line int, err error) error {
	var se *Error
	if errors.As(err, &se) {
		if !se.Located() && se.Line == 0 {
			se.Line = line + 1
		}
		return err
	}
	return &Error{Kind: KindRuntime, Line: line + 1, Err: err}
}

// step processes one logical line.
func (e *engine) step(ctx context.Context, line int, text string) error {
	if e.cap != nil {
		return e.record(line, text)
	}

	kw, rest := splitKeyword(text)
	switch kw {
	case kwIf:
		return e.doIf(ctx, stripComment(rest))
	case kwElsif:
		return e.doElsif(ctx, stripComment(rest))
	case kwElse:
		return e.doElse()
	case kwEndif:
		return e.doEndif()
	case kwWhile, kwUntil, kwFor, kwLoop:
		return e.doLoop(ctx, line, kw, stripComment(rest))
	case kwBreak:
		return e.doBreak(line, stripComment(rest))
	case kwNext:
		return e.doNext(line)
	case kwEndloop:
		return e.doEndloop(line)
	case kwReturn:
		return e.doReturn(ctx, rest)
	case kwMacro:
		return e.doMacro(line, stripComment(rest))
	case kwEndmacro:
		return invariantf("'endmacro' without 'macro'")
	}

	if !e.stack.top().live {
		return nil
	}
	v, err := e.ctl.eval.Eval(ctx, e.frame, text, CommentToken)
	if err != nil {
		return err
	}
	e.result = v
	return nil
}

func (e *engine) cond(ctx context.Context, kw, expr string) (bool, error) {
	if expr == "" {
		return false, runtimef(ErrSyntax, "'%s' needs a condition", kw)
	}
	v, err := e.ctl.eval.Eval(ctx, e.frame, expr, CommentToken)
	if err != nil {
		return false, err
	}
	return e.ctl.eval.Truthy(v), nil
}

func (e *engine) doIf(ctx context.Context, rest string) error {
	l := level{}
	if e.stack.top().live {
		ok, err := e.cond(ctx, kwIf, trimSuffixWord(rest, "then"))
		if err != nil {
			return err
		}
		l.live = ok
		l.ifwastrue = ok
	}
	e.stack.push(l)
	return nil
}

func (e *engine) ifLevel(kw string) (*level, error) {
	if e.stack.atRoot() {
		return nil, invariantf("'%s' without 'if'", kw)
	}
	top := e.stack.top()
	if top.loopspawn {
		return nil, invariantf("'%s' inside loop without 'if'", kw)
	}
	if top.elseseen {
		return nil, invariantf("'%s' after 'else'", kw)
	}
	return top, nil
}

func (e *engine) doElsif(ctx context.Context, rest string) error {
	top, err := e.ifLevel(kwElsif)
	if err != nil {
		return err
	}
	if !e.stack.parent().live || top.ifwastrue {
		top.live = false
		return nil
	}
	ok, err := e.cond(ctx, kwElsif, trimSuffixWord(rest, "then"))
	if err != nil {
		return err
	}
	top.live = ok
	top.ifwastrue = ok
	return nil
}

func (e *engine) doElse() error {
	top, err := e.ifLevel(kwElse)
	if err != nil {
		return err
	}
	top.elseseen = true
	top.live = e.stack.parent().live && !top.ifwastrue
	if top.live {
		top.ifwastrue = true
	}
	return nil
}

func (e *engine) doEndif() error {
	if e.stack.atRoot() {
		return invariantf("'endif' without 'if'")
	}
	if e.stack.top().loopspawn {
		return invariantf("'endif' closes a loop")
	}
	e.stack.pop()
	return nil
}

// doLoop handles while, until, for and loop. The opener is reached either
// from above or from its endloop, in which case the popped level comes back
// through carry with its iteration count and iterator.
func (e *engine) doLoop(ctx context.Context, line int, kw, rest string) error {
	l := level{live: true, loopspawn: true, marker: line}
	if e.carry != nil && e.carry.marker == line {
		l = *e.carry
	}
	e.carry = nil

	exit, err := e.table.skipTarget(line)
	if err != nil {
		return err
	}
	if !e.stack.top().live {
		e.cur.jump(exit)
		return nil
	}

	enter, err := e.test(ctx, kw, rest, &l)
	if err != nil {
		return err
	}
	if !enter {
		e.cur.jump(exit)
		return nil
	}

	if limit := e.ctl.limits.MaxLoopIterations; limit > 0 && l.iter >= limit {
		return runtimef(ErrIterationLimit, "'%s' ran %d times", kw, l.iter)
	}
	l.iter++
	e.stack.push(l)
	return nil
}

// test evaluates a loop condition. For a for loop it advances the iterator
// and binds the loop variable.
func (e *engine) test(ctx context.Context, kw, rest string, l *level) (bool, error) {
	switch kw {
	case kwLoop:
		return true, nil
	case kwWhile:
		return e.cond(ctx, kw, trimSuffixWord(rest, "do"))
	case kwUntil:
		ok, err := e.cond(ctx, kw, trimSuffixWord(rest, "do"))
		return !ok, err
	}

	name, expr, err := parseFor(trimSuffixWord(rest, "do"))
	if err != nil {
		return false, err
	}
	if !l.iterOK {
		v, err := e.ctl.eval.Eval(ctx, e.frame, expr, CommentToken)
		if err != nil {
			return false, err
		}
		items, ok := e.ctl.eval.Elements(v)
		if !ok {
			return false, runtimef(ErrNotArray, "for %s in %s", name, expr)
		}
		l.items = items
		l.iterOK = true
	}
	if l.next >= len(l.items) {
		l.items = nil
		return false, nil
	}
	item := l.items[l.next]
	l.next++
	if err := e.ctl.eval.Bind(e.frame, name, item); err != nil {
		return false, err
	}
	return true, nil
}

// parseFor splits "VAR in EXPR".
func parseFor(rest string) (string, string, error) {
	name, tail := splitKeyword(rest)
	in, expr := splitKeyword(tail)
	if !isIdent(name) || in != "in" || expr == "" {
		return "", "", runtimef(ErrSyntax, "expected 'for VAR in EXPR', got 'for %s'", rest)
	}
	return name, expr, nil
}

func (e *engine) doEndloop(line int) error {
	head, err := e.table.headTarget(line)
	if err != nil {
		return err
	}
	top := e.stack.top()
	if e.stack.atRoot() || !top.loopspawn || top.marker != head {
		return invariantf("'endloop' at line %d does not close the current block", line+1)
	}
	l, _ := e.stack.pop()
	e.carry = &l
	e.cur.jump(head)
	return nil
}

func (e *engine) doNext(line int) error {
	if !e.stack.top().live {
		return nil
	}
	endloop, marker, err := e.table.nextTarget(line)
	if err != nil {
		return err
	}
	for !e.stack.top().loopspawn {
		if _, ok := e.stack.pop(); !ok {
			return invariantf("'next' outside loop")
		}
	}
	if e.stack.top().marker != marker {
		return invariantf("'next' at line %d resumes the wrong loop", line+1)
	}
	e.cur.jump(endloop)
	return nil
}

func (e *engine) doBreak(line int, rest string) error {
	if !e.stack.top().live {
		return nil
	}
	n := 1
	if rest != "" {
		v, err := strconv.Atoi(rest)
		if err != nil || v < 1 {
			return runtimef(ErrSyntax, "'break' level must be a positive integer, got '%s'", rest)
		}
		n = v
	}
	endloop, marker, err := e.table.breakTarget(line, n)
	if err != nil {
		return err
	}

	var last level
	for popped := 0; popped < n; {
		l, ok := e.stack.pop()
		if !ok {
			return invariantf("'break %d' at line %d ran out of loop levels", n, line+1)
		}
		if l.loopspawn {
			popped++
			last = l
		}
	}
	if last.marker != marker {
		return invariantf("'break %d' at line %d left the wrong loop", n, line+1)
	}
	e.carry = nil
	e.cur.jump(endloop + 1)
	return nil
}

func (e *engine) doReturn(ctx context.Context, rest string) error {
	if !e.stack.top().live {
		return nil
	}
	e.result = nil
	if expr := stripComment(rest); expr != "" {
		v, err := e.ctl.eval.Eval(ctx, e.frame, rest, CommentToken)
		if err != nil {
			return err
		}
		e.result = v
	}
	e.returned = true
	return nil
}

// doMacro starts capturing a nested macro definition. Lines up to the
// matching endmacro are copied verbatim and not evaluated.
func (e *engine) doMacro(line int, rest string) error {
	c := &capture{depth: 1, line: line, arity: ArityAny}
	e.cap = c
	e.cur.recording = true
	if !e.stack.top().live {
		return nil
	}

	name, tail := splitKeyword(rest)
	if !buffer.ValidName(name) {
		return runtimef(ErrSyntax, "'macro' needs a name")
	}
	if word, usage := splitKeyword(tail); word != "" {
		if n, err := strconv.Atoi(word); err == nil {
			c.arity = n
			tail = usage
		}
	}
	c.usage = strings.Trim(tail, `"`)

	target := e.ctl.buffers.Create(name)
	if target.Busy() {
		return runtimef(buffer.ErrBufferBusy, "cannot redefine running macro '%s'", name)
	}
	c.target = target
	return nil
}

// record handles one raw line while a macro definition is open.
func (e *engine) record(line int, raw string) error {
	switch kw, _ := splitKeyword(raw); kw {
	case kwMacro:
		e.cap.depth++
	case kwEndmacro:
		e.cap.depth--
		if e.cap.depth == 0 {
			return e.finishCapture()
		}
	}
	e.cap.lines = append(e.cap.lines, raw)
	return nil
}

func (e *engine) finishCapture() error {
	c := e.cap
	e.cap = nil
	e.cur.recording = false
	if c.target == nil {
		return nil
	}
	if err := c.target.SetLines(c.lines); err != nil {
		return err
	}
	ExtensionOf(c.target).Declare(c.arity, c.usage)
	e.ctl.log.Debug("defined macro '%s' (%d lines)", c.target.Name(), len(c.lines))
	return nil
}
