package lua

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// stashName is the builtin table holding values that have no source form.
const stashName = "__stash"

// Literal encodes v as Lua source that evaluates back to v. Strings and
// numbers are written out; other values are parked in a stash that lives
// until the current top-level evaluation finishes.
func (e *Evaluator) Literal(v any) (string, error) {
	if e.state.Closed() {
		return "", ErrStateClosed
	}
	switch x := v.(type) {
	case nil, *lua.LNilType:
		return "nil", nil
	case bool:
		return strconv.FormatBool(x), nil
	case lua.LBool:
		return strconv.FormatBool(bool(x)), nil
	case string:
		return quote(x), nil
	case lua.LString:
		return quote(string(x)), nil
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float64:
		if s, ok := formatNumber(x); ok {
			return s, nil
		}
	case lua.LNumber:
		if s, ok := formatNumber(float64(x)); ok {
			return s, nil
		}
	}
	return e.park(v), nil
}

func formatNumber(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'g', -1, 64), true
}

// park stores v in the stash and returns the expression that reads it.
func (e *Evaluator) park(v any) string {
	e.stashN++
	e.stash.RawSetInt(e.stashN, e.toLua(v))
	return fmt.Sprintf("%s[%d]", stashName, e.stashN)
}

func (e *Evaluator) clearStash() {
	if e.stashN == 0 {
		return
	}
	e.stash = e.state.L.NewTable()
	e.stashN = 0
}

// quote returns s as a double-quoted Lua string literal.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03d`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
