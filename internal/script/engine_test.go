package script

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func runLines(t *testing.T, c *Controller, lines ...string) (Result, error) {
	t.Helper()
	b := define(t, c, "m", ArityAny, lines...)
	return invoke(t, c, b)
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "if taken",
			lines: []string{"if true", "emit 1", "elsif true", "emit 2", "else", "emit 3", "endif"},
			want:  []string{"1"},
		},
		{
			name:  "elsif taken",
			lines: []string{"if false", "emit 1", "elsif true", "emit 2", "else", "emit 3", "endif"},
			want:  []string{"2"},
		},
		{
			name:  "else taken",
			lines: []string{"if false", "emit 1", "elsif false", "emit 2", "else", "emit 3", "endif"},
			want:  []string{"3"},
		},
		{
			name:  "dead branch conditions are not evaluated",
			lines: []string{"if false", "if fail", "emit 1", "endif", "emit 2", "endif", "emit 3"},
			want:  []string{"3"},
		},
		{
			name:  "elsif after taken branch is not evaluated",
			lines: []string{"if true", "emit 1", "elsif fail", "emit 2", "endif"},
			want:  []string{"1"},
		},
		{
			name:  "then suffix",
			lines: []string{"if 1 then", "emit 1", "endif"},
			want:  []string{"1"},
		},
		{
			name:  "comments and continuations",
			lines: []string{"-- heading", "", "emit \\", "   5", "emit 6 -- trailing"},
			want:  []string{"5", "6"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ev := newTestController(t)
			if _, err := runLines(t, c, tt.lines...); err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			assertOut(t, ev, tt.want...)
		})
	}
}

func TestLoops(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "while",
			lines: []string{"set i 0", "while i < 3", "emit i", "inc i", "endloop"},
			want:  []string{"0", "1", "2"},
		},
		{
			name:  "until",
			lines: []string{"set i 0", "until i == 3 do", "emit i", "inc i", "endloop"},
			want:  []string{"0", "1", "2"},
		},
		{
			name:  "for",
			lines: []string{"for x in [1,2,3]", "emit x", "endloop"},
			want:  []string{"1", "2", "3"},
		},
		{
			name:  "for restarts when re-entered",
			lines: []string{"set i 0", "while i < 2", "inc i", "for x in [7,8]", "emit x", "endloop", "endloop"},
			want:  []string{"7", "8", "7", "8"},
		},
		{
			name:  "false while never enters",
			lines: []string{"while false", "emit 1", "endloop", "emit 2"},
			want:  []string{"2"},
		},
		{
			name: "break leaves innermost loop",
			lines: []string{
				"for x in [1,2]",
				"  for y in [1,2,3]",
				"    if y == 2",
				"      break",
				"    endif",
				"    emit y",
				"  endloop",
				"  emit x",
				"endloop",
			},
			want: []string{"1", "1", "1", "2"},
		},
		{
			name: "break 2 leaves both loops",
			lines: []string{
				"set i 0",
				"loop",
				"  inc i",
				"  for x in [1,2,3]",
				"    if x == 2",
				"      break 2",
				"    endif",
				"    emit x",
				"  endloop",
				`  emit "unreached"`,
				"endloop",
				"emit i",
			},
			want: []string{"1", "1"},
		},
		{
			name:  "next in for",
			lines: []string{"for x in [1,2,3]", "if x == 2", "next", "endif", "emit x", "endloop"},
			want:  []string{"1", "3"},
		},
		{
			name:  "next in while re-tests",
			lines: []string{"set i 0", "while i < 3", "inc i", "if i == 2", "next", "endif", "emit i", "endloop"},
			want:  []string{"1", "3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ev := newTestController(t)
			if _, err := runLines(t, c, tt.lines...); err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			assertOut(t, ev, tt.want...)
		})
	}
}

func TestIterationLimit(t *testing.T) {
	limits := Limits{MaxMacroDepth: DefaultMaxMacroDepth, MaxLoopIterations: 5}
	tests := []struct {
		name  string
		lines []string
	}{
		{"loop", []string{"loop", "endloop"}},
		{"while", []string{"while true", "endloop"}},
		{"until", []string{"until false", "endloop"}},
		{"for", []string{"for x in [1,2,3,4,5,6]", "endloop"}},
		{"next", []string{"loop", "next", "endloop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, WithLimits(limits))
			_, err := runLines(t, c, tt.lines...)
			if !errors.Is(err, ErrIterationLimit) {
				t.Fatalf("error = %v, want ErrIterationLimit", err)
			}
			if c.Vars().Height() != 0 || c.Depth() != 0 {
				t.Errorf("state not restored: height=%d depth=%d", c.Vars().Height(), c.Depth())
			}
		})
	}

	t.Run("exactly at limit", func(t *testing.T) {
		c, ev := newTestController(t, WithLimits(limits))
		if _, err := runLines(t, c, "for x in [1,2,3,4,5]", "emit x", "endloop"); err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		assertOut(t, ev, "1", "2", "3", "4", "5")
	})
}

func TestLoopErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  error
		line  int
	}{
		{"break deeper than nesting", []string{"loop", "break 2", "endloop"}, ErrBreakDepth, 2},
		{"break level not a number", []string{"loop", "break x", "endloop"}, ErrSyntax, 2},
		{"for over scalar", []string{"for x in 5", "endloop"}, ErrNotArray, 1},
		{"malformed for", []string{"for x of [1]", "endloop"}, ErrSyntax, 1},
		{"statement failure", []string{"emit 1", "fail"}, errBoom, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t)
			_, err := runLines(t, c, tt.lines...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not *Error", err)
			}
			if se.Kind != KindRuntime || se.Name != "m" || se.Label != LabelMacro || se.Line != tt.line {
				t.Errorf("error = %+v, want runtime in macro 'm' at line %d", se, tt.line)
			}
		})
	}
}

func TestBlockLeftOpenIsInvariant(t *testing.T) {
	c, _ := newTestController(t)
	// The continuation swallows the endloop, so the loop level is still
	// open when the lines run out.
	_, err := runLines(t, c, "loop", "inc \\", "endloop")
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("error = %v, want ErrInvariant", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not *Error", err)
	}
	if se.Kind != KindInvariant || se.Name != "m" || se.Line != 3 {
		t.Errorf("error = %+v, want invariant in macro 'm' at line 3", se)
	}
	if !strings.HasPrefix(err.Error(), "[invariant] ") {
		t.Errorf("error = %q, want invariant marker", err.Error())
	}
}

func TestReturn(t *testing.T) {
	c, ev := newTestController(t)
	res, err := runLines(t, c,
		"set x 1",
		"loop",
		"  set y 2",
		"  if false",
		"    return 7",
		"  endif",
		"  emit y",
		"  return 42",
		"endloop",
		`emit "after"`,
	)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Returned || res.Value != 42 {
		t.Errorf("Result = %+v, want returned 42", res)
	}
	assertOut(t, ev, "2")
	if h := c.Vars().Height(); h != 0 {
		t.Errorf("Vars().Height() = %d, want 0", h)
	}
}

func TestResultIsLastStatement(t *testing.T) {
	c, _ := newTestController(t)
	res, err := runLines(t, c, "set x 5")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Returned || res.Value != 5 {
		t.Errorf("Result = %+v, want value 5 without return", res)
	}
}

func TestNestedMacroDefinition(t *testing.T) {
	c, ev := newTestController(t)
	_, err := runLines(t, c,
		`macro inner 2 "usage text"`,
		"-- kept verbatim",
		"  emit arg1",
		"emit arg2",
		"endmacro",
		"call inner 1 2",
	)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	assertOut(t, ev, "1", "2")

	b, ok := c.Buffers().Get("inner")
	if !ok {
		t.Fatal("macro 'inner' was not defined")
	}
	want := []string{"-- kept verbatim", "  emit arg1", "emit arg2"}
	if got := b.Lines(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Lines() = %q, want %q", got, want)
	}
	x := ExtensionOf(b)
	if x.Arity() != 2 || x.Usage() != "usage text" {
		t.Errorf("arity/usage = %d/%q", x.Arity(), x.Usage())
	}
}

func TestNestedMacroDepth(t *testing.T) {
	c, _ := newTestController(t)
	_, err := runLines(t, c,
		"macro outer",
		"macro inner",
		"emit 1",
		"endmacro",
		"endmacro",
	)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	b, ok := c.Buffers().Get("outer")
	if !ok {
		t.Fatal("macro 'outer' was not defined")
	}
	if got := b.Lines(); len(got) != 3 || got[0] != "macro inner" || got[2] != "endmacro" {
		t.Errorf("Lines() = %q", got)
	}
	if c.HasMacro("inner") {
		t.Error("inner definition was executed while recording")
	}
}

func TestSkippedMacroDefinition(t *testing.T) {
	c, ev := newTestController(t)
	_, err := runLines(t, c,
		"if false",
		"macro skipped",
		"emit 1",
		"endmacro",
		"endif",
		"emit 2",
	)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	assertOut(t, ev, "2")
	if c.HasMacro("skipped") {
		t.Error("definition in a dead branch was created")
	}
}

func TestRedefineRunningMacro(t *testing.T) {
	c, _ := newTestController(t)
	_, err := runLines(t, c, "macro m", "emit 1", "endmacro")
	if err == nil || !strings.Contains(err.Error(), "running macro") {
		t.Fatalf("error = %v, want busy refusal", err)
	}
}

func TestAbort(t *testing.T) {
	c, ev := newTestController(t)
	b := define(t, c, "m", ArityAny, "loop", "emit 1", "endloop")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Invoke(ctx, b, 1, LabelMacro, 0, nil)
	if !IsAbort(err) {
		t.Fatalf("error = %v, want abort", err)
	}
	if KindOf(err) != KindAbort {
		t.Errorf("KindOf() = %v, want abort", KindOf(err))
	}
	assertOut(t, ev)
	if c.Depth() != 0 || ExtensionOf(b).Nesting() != 0 {
		t.Error("state not restored after abort")
	}
}
