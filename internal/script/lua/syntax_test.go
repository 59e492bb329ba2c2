package lua

import (
	"strings"
	"testing"
)

func TestTranslateArrays(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[1, 2]", "{1, 2}"},
		{"t[1]", "t[1]"},
		{"t[1][2]", "t[1][2]"},
		{"x in [1, [2, 3]]", "x in {1, {2, 3}}"},
		{"f([1], t[2])", "f({1}, t[2])"},
		{`"[not]" .. s[1]`, `"[not]" .. s[1]`},
		{"return [a]", "return {a}"},
		{"#[1]", "#{1}"},
	}
	for _, tt := range tests {
		if got := translateArrays(tt.in); got != tt.want {
			t.Errorf("translateArrays(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		in, term, want string
	}{
		{"x -- c", "--", "x"},
		{`"a -- b"`, "--", `"a -- b"`},
		{`'it''s' -- c`, "--", `'it''s'`},
		{"  x -- c ", "", "x -- c"},
	}
	for _, tt := range tests {
		if got := stripComment(tt.in, tt.term); got != tt.want {
			t.Errorf("stripComment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"1", []string{"1"}},
		{`1, "a,b", f(2, 3), [4, 5]`, []string{"1", `"a,b"`, "f(2, 3)", "[4, 5]"}},
		{"a,,", []string{"a", "", ""}},
	}
	for _, tt := range tests {
		got := splitArgs(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCallLike(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"= 5", true},
		{"== 5", true},
		{"(1)", true},
		{".x", true},
		{"and y", true},
		{"1, 2", false},
		{`"s"`, false},
		{"-1", false},
	}
	for _, tt := range tests {
		if got := callLike(tt.in); got != tt.want {
			t.Errorf("callLike(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestQuote(t *testing.T) {
	if got, want := quote("a\"b\\\n\x01"), `"a\"b\\\n\001"`; got != want {
		t.Errorf("quote() = %s, want %s", got, want)
	}
}

func TestIsName(t *testing.T) {
	for s, want := range map[string]bool{"foo": true, "_x1": true, "1x": false, "end": false, "a-b": false, "": false} {
		if got := isName(s); got != want {
			t.Errorf("isName(%q) = %v, want %v", s, got, want)
		}
	}
}
