package script

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/vars"
)

var errBoom = errors.New("boom")

// fakeEval is a tiny statement language used to drive the engine:
//
//	emit EXPR          append EXPR to out
//	set NAME EXPR      declare a local
//	inc NAME           add one to a local
//	call NAME ARGS...  call a macro
//	edit NAME          replace the text of buffer NAME
//	fail               return errBoom
//	EXPR               true, false, integers, "strings", [a,b], names,
//	                   argc, argN, n, and A < B, A > B, A == B
type fakeEval struct {
	ctl   *Controller
	store *vars.Store
	out   []string
	evals int
}

func (f *fakeEval) Eval(ctx context.Context, fr *Frame, text, terminator string) (any, error) {
	f.evals++
	if i := strings.Index(text, terminator); i >= 0 {
		text = text[:i]
	}
	word, rest := splitKeyword(text)
	switch word {
	case "emit":
		v, err := f.value(fr, rest)
		if err != nil {
			return nil, err
		}
		f.out = append(f.out, fmt.Sprint(v))
		return nil, nil
	case "set":
		name, expr := splitKeyword(rest)
		v, err := f.value(fr, expr)
		if err != nil {
			return nil, err
		}
		f.store.Declare(fr.Base, name, v)
		return v, nil
	case "inc":
		v, _ := f.store.Lookup(fr.Base, rest)
		n, _ := v.(int)
		f.store.Declare(fr.Base, rest, n+1)
		return n + 1, nil
	case "call":
		name, tail := splitKeyword(rest)
		var args []Arg
		for _, tok := range strings.Fields(tail) {
			v, err := f.value(fr, tok)
			if err != nil {
				return nil, err
			}
			args = append(args, Arg{Token: tok, Value: v})
		}
		return f.ctl.Call(ctx, name, 1, args)
	case "edit":
		b, ok := f.ctl.Buffers().Get(rest)
		if !ok {
			return nil, fmt.Errorf("no buffer %s", rest)
		}
		return nil, b.SetText("emit 1")
	case "fail":
		return nil, errBoom
	}
	return f.value(fr, text)
}

func (f *fakeEval) value(fr *Frame, s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, op := range []string{" == ", " < ", " > "} {
		if l, r, ok := strings.Cut(s, op); ok {
			a, err := f.value(fr, l)
			if err != nil {
				return nil, err
			}
			b, err := f.value(fr, r)
			if err != nil {
				return nil, err
			}
			ai, _ := a.(int)
			bi, _ := b.(int)
			switch op {
			case " == ":
				return a == b, nil
			case " < ":
				return ai < bi, nil
			default:
				return ai > bi, nil
			}
		}
	}
	switch {
	case s == "true":
		return true, nil
	case s == "false":
		return false, nil
	case s == "argc":
		return len(fr.Args), nil
	case s == "n":
		return fr.N, nil
	case strings.HasPrefix(s, "arg"):
		i, err := strconv.Atoi(s[3:])
		if err != nil || i < 1 || i > len(fr.Args) {
			return nil, fmt.Errorf("bad argument %s", s)
		}
		return fr.Args[i-1].Value, nil
	case strings.HasPrefix(s, `"`):
		return strconv.Unquote(s)
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		var items []any
		for _, part := range strings.Split(s[1:len(s)-1], ",") {
			v, err := f.value(fr, part)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if v, ok := f.store.Lookup(fr.Base, s); ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown name %q", s)
}

func (f *fakeEval) Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	}
	return true
}

func (f *fakeEval) Elements(v any) ([]any, bool) {
	items, ok := v.([]any)
	return items, ok
}

func (f *fakeEval) Bind(fr *Frame, name string, v any) error {
	f.store.Declare(fr.Base, name, v)
	return nil
}

func (f *fakeEval) Literal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), nil
	case int:
		return strconv.Itoa(x), nil
	}
	return "", fmt.Errorf("no literal for %T", v)
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeEval) {
	t.Helper()
	store := vars.NewStore()
	ev := &fakeEval{store: store}
	c := NewController(buffer.NewRegistry(), store, ev, opts...)
	ev.ctl = c
	return c, ev
}

func define(t *testing.T, c *Controller, name string, arity int, lines ...string) *buffer.Buffer {
	t.Helper()
	b, err := c.Define(name, lines, arity, "")
	if err != nil {
		t.Fatalf("Define(%s) error = %v", name, err)
	}
	return b
}

func invoke(t *testing.T, c *Controller, b *buffer.Buffer, args ...Arg) (Result, error) {
	t.Helper()
	return c.Invoke(context.Background(), b, 1, LabelMacro, 0, args)
}

func mustInvoke(t *testing.T, c *Controller, b *buffer.Buffer, args ...Arg) Result {
	t.Helper()
	res, err := invoke(t, c, b, args...)
	if err != nil {
		t.Fatalf("Invoke(%s) error = %v", b.Name(), err)
	}
	return res
}

func assertOut(t *testing.T, ev *fakeEval, want ...string) {
	t.Helper()
	if strings.Join(ev.out, ",") != strings.Join(want, ",") {
		t.Errorf("output = %q, want %q", ev.out, want)
	}
}
