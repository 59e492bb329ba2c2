package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/vars"
)

// Default limits.
const (
	DefaultMaxMacroDepth     = 64
	DefaultMaxLoopIterations = 100_000
)

// Labels used in error locations.
const (
	LabelMacro  = "macro"
	LabelBuffer = "buffer"
	LabelFile   = "file"
	LabelHook   = "hook"
	LabelEval   = "eval"
)

// Flags modify an invocation.
type Flags uint8

const (
	// FlagNoArgCheck skips the declared-arity check.
	FlagNoArgCheck Flags = 1 << iota
	// FlagHook marks an invocation made by the hook dispatcher.
	FlagHook
)

// Has reports whether all bits of o are set.
func (f Flags) Has(o Flags) bool { return f&o == o }

// Limits bound runaway scripts. Zero or negative disables a limit.
type Limits struct {
	MaxMacroDepth     int
	MaxLoopIterations int
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxMacroDepth:     DefaultMaxMacroDepth,
		MaxLoopIterations: DefaultMaxLoopIterations,
	}
}

// Result is the outcome of a successful invocation.
type Result struct {
	// Value is the return value, or the value of the last evaluated
	// statement when the macro ended without return.
	Value any
	// Returned is true when the macro ended with return.
	Returned bool
}

// Controller runs macros.
type Controller struct {
	limits  Limits
	buffers *buffer.Registry
	vars    *vars.Store
	eval    Evaluator
	log     Logger
	frames  []*Frame
}

// Option configures a Controller.
type Option func(*Controller)

// WithLimits sets the recursion and iteration ceilings.
func WithLimits(l Limits) Option {
	return func(c *Controller) {
		c.limits = l
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewController creates a controller over the given buffers, variable store
// and evaluator.
func NewController(buffers *buffer.Registry, store *vars.Store, eval Evaluator, opts ...Option) *Controller {
	c := &Controller{
		limits:  DefaultLimits(),
		buffers: buffers,
		vars:    store,
		eval:    eval,
		log:     nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Limits returns the configured limits.
func (c *Controller) Limits() Limits { return c.limits }

// Buffers returns the buffer registry.
func (c *Controller) Buffers() *buffer.Registry { return c.buffers }

// Vars returns the variable store.
func (c *Controller) Vars() *vars.Store { return c.vars }

// Evaluator returns the evaluator.
func (c *Controller) Evaluator() Evaluator { return c.eval }

// Depth returns the number of active invocations.
func (c *Controller) Depth() int { return len(c.frames) }

// Frames returns a copy of the call stack, outermost first.
func (c *Controller) Frames() []Frame {
	out := make([]Frame, len(c.frames))
	for i, f := range c.frames {
		out[i] = *f
	}
	return out
}

// Current returns the innermost frame, or nil.
func (c *Controller) Current() *Frame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// HasMacro reports whether a macro buffer called name exists.
func (c *Controller) HasMacro(name string) bool {
	_, ok := c.buffers.Get(name)
	return ok
}

// Invoke runs the macro in b.
//
// The call stack, the macro's nesting counter and the local variables the
// call created are restored on every exit path, including failures and
// return.
func (c *Controller) Invoke(ctx context.Context, b *buffer.Buffer, n int, label string, flags Flags, args []Arg) (Result, error) {
	res, err := c.invoke(ctx, b, n, label, flags, args)
	if err != nil && len(c.frames) == 0 {
		err = locate(err, label, b.Name(), 0)
	}
	return res, err
}

func (c *Controller) invoke(ctx context.Context, b *buffer.Buffer, n int, label string, flags Flags, args []Arg) (Result, error) {
	if b.Narrowed() {
		return Result{}, runtimef(ErrNarrowed, "%s", b.Name())
	}

	x, _ := b.Extension().(*Extension)
	if x != nil && c.limits.MaxMacroDepth > 0 && x.nesting >= c.limits.MaxMacroDepth {
		return Result{}, runtimef(ErrRecursionLimit, "'%s' nested %d deep", b.Name(), x.nesting)
	}
	if x == nil {
		x = ExtensionOf(b)
	}

	bound, err := bindArgs(b.Name(), x.arity, flags, args)
	if err != nil {
		return Result{}, err
	}

	snap, err := x.compile(b)
	if err != nil {
		var se *Error
		if errors.As(err, &se) && se.Label == "" {
			se.Label = label
		}
		return Result{}, err
	}

	frame := &Frame{
		ID:    uuid.NewString(),
		Label: label,
		Name:  b.Name(),
		Args:  bound,
		N:     n,
		Base:  c.vars.Height(),
		Depth: len(c.frames) + 1,
		Flags: flags,
	}
	c.frames = append(c.frames, frame)
	x.nesting++
	c.log.Debug("enter %s '%s' (id=%s depth=%d)", label, frame.Name, frame.ID, frame.Depth)

	defer func() {
		c.vars.Truncate(frame.Base)
		x.nesting--
		c.frames[len(c.frames)-1] = nil
		c.frames = c.frames[:len(c.frames)-1]
		c.log.Debug("leave %s '%s' (id=%s)", label, frame.Name, frame.ID)
	}()

	e := newEngine(c, frame, snap)
	if err := e.run(ctx); err != nil {
		return Result{}, locate(err, label, frame.Name, 0)
	}
	return Result{Value: e.result, Returned: e.returned}, nil
}

// bindArgs checks args against the declared arity.
func bindArgs(name string, arity int, flags Flags, args []Arg) ([]Arg, error) {
	if flags.Has(FlagNoArgCheck) || arity == ArityAny {
		return append([]Arg(nil), args...), nil
	}
	if len(args) > arity {
		return nil, runtimef(ErrArgCount, "'%s' takes %d argument(s), unexpected '%s'", name, arity, args[arity].Token)
	}
	if len(args) < arity {
		return nil, runtimef(ErrArgCount, "'%s' takes %d argument(s), got %d", name, arity, len(args))
	}
	return append([]Arg(nil), args...), nil
}

// Call runs the macro called name with label "macro".
func (c *Controller) Call(ctx context.Context, name string, n int, args []Arg) (any, error) {
	b, ok := c.buffers.Get(name)
	if !ok {
		return nil, runtimef(ErrMacroNotFound, "%s", name)
	}
	res, err := c.Invoke(ctx, b, n, LabelMacro, 0, args)
	return res.Value, err
}

// Execute runs text as an anonymous script, as if typed by the user.
func (c *Controller) Execute(ctx context.Context, text, label string, n int) (Result, error) {
	if label == "" {
		label = LabelEval
	}
	b := buffer.NewFromString("*"+label+"*", text)
	return c.Invoke(ctx, b, n, label, FlagNoArgCheck, nil)
}

// ExecuteBuffer runs the buffer called name, ignoring its declared arity.
func (c *Controller) ExecuteBuffer(ctx context.Context, name string, n int) (Result, error) {
	b, ok := c.buffers.Get(name)
	if !ok {
		return Result{}, &Error{Kind: KindRuntime, Label: LabelBuffer, Name: name, Err: fmt.Errorf("%w: %s", buffer.ErrBufferNotFound, name)}
	}
	return c.Invoke(ctx, b, n, LabelBuffer, FlagNoArgCheck, nil)
}

// Define creates or replaces the macro called name.
func (c *Controller) Define(name string, lines []string, arity int, usage string) (*buffer.Buffer, error) {
	if !buffer.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", buffer.ErrInvalidName, name)
	}
	b := c.buffers.Create(name)
	if err := b.SetLines(lines); err != nil {
		return nil, err
	}
	ExtensionOf(b).Declare(arity, usage)
	return b, nil
}

// IsAbort reports whether err is a user cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted) || KindOf(err) == KindAbort
}
