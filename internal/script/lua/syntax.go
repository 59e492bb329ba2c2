package lua

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	localDecl = regexp.MustCompile(`^local\s+([A-Za-z_]\w*(?:\s*,\s*[A-Za-z_]\w*)*)\s*(?:=\s*(.*))?$`)
	localFunc = regexp.MustCompile(`^local\s+function\s+([A-Za-z_]\w*)\s*(\(.*)$`)
)

// Words after which "[" opens an array literal rather than an index.
var valueKeywords = map[string]bool{
	"and": true, "do": true, "else": true, "elseif": true, "if": true,
	"in": true, "not": true, "or": true, "return": true, "then": true,
	"until": true, "while": true,
}

// stripComment cuts s at the first terminator outside a string literal.
func stripComment(s, terminator string) string {
	if terminator == "" {
		return strings.TrimSpace(s)
	}
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case strings.HasPrefix(s[i:], terminator):
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

// translateArrays rewrites square-bracket array literals as table
// constructors, leaving index expressions alone.
func translateArrays(src string) string {
	if !strings.Contains(src, "[") {
		return src
	}
	out := []byte(src)
	var literal []bool
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			lit := opensValue(out[:i])
			literal = append(literal, lit)
			if lit {
				out[i] = '{'
			}
		case ']':
			if n := len(literal); n > 0 {
				if literal[n-1] {
					out[i] = '}'
				}
				literal = literal[:n-1]
			}
		}
	}
	return string(out)
}

// opensValue reports whether a "[" following before starts a value.
func opensValue(before []byte) bool {
	s := strings.TrimRightFunc(string(before), unicode.IsSpace)
	if s == "" {
		return true
	}
	last := s[len(s)-1]
	switch {
	case last == ')' || last == ']' || last == '}' || last == '"' || last == '\'':
		return false
	case isWordByte(last):
		j := len(s)
		for j > 0 && isWordByte(s[j-1]) {
			j--
		}
		return valueKeywords[s[j:]]
	}
	return true
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// isName reports whether s is a Lua identifier.
func isName(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return !luaReserved[s]
}

var luaReserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true, "goto": true,
}

// splitWord returns the first word of s and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// splitArgs splits a macro call's argument list at top-level commas.
func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		args  []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(s[start:]))
}

// callLike reports whether rest, following a macro name, continues a Lua
// expression instead of starting an argument list.
func callLike(rest string) bool {
	if rest == "" {
		return false
	}
	if strings.ContainsRune("=([.:+*/%^<>~", rune(rest[0])) {
		return true
	}
	word, _ := splitWord(rest)
	return word == "and" || word == "or"
}
