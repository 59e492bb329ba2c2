package script

import (
	"strings"
	"unicode"
)

// CommentToken starts a comment line and ends a statement.
const CommentToken = "--"

// Keywords recognised at the start of a line.
const (
	kwIf       = "if"
	kwElsif    = "elsif"
	kwElse     = "else"
	kwEndif    = "endif"
	kwWhile    = "while"
	kwUntil    = "until"
	kwFor      = "for"
	kwLoop     = "loop"
	kwBreak    = "break"
	kwNext     = "next"
	kwEndloop  = "endloop"
	kwReturn   = "return"
	kwMacro    = "macro"
	kwEndmacro = "endmacro"
)

// skippable reports whether a physical line is blank or a comment.
func skippable(line string) bool {
	t := strings.TrimSpace(line)
	return t == "" || strings.HasPrefix(t, CommentToken)
}

// splitKeyword returns the first word of line and the trimmed remainder.
func splitKeyword(line string) (string, string) {
	t := strings.TrimSpace(line)
	i := strings.IndexFunc(t, unicode.IsSpace)
	if i < 0 {
		return t, ""
	}
	return t[:i], strings.TrimSpace(t[i:])
}

// stripComment cuts s at the first comment token outside quotes.
func stripComment(s string) string {
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
		case strings.HasPrefix(s[i:], CommentToken):
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

// trimSuffixWord removes a trailing word such as "then" or "do".
func trimSuffixWord(s, word string) string {
	if s == word {
		return ""
	}
	if strings.HasSuffix(s, word) {
		head := s[:len(s)-len(word)]
		if head != "" && unicode.IsSpace(rune(head[len(head)-1])) {
			return strings.TrimSpace(head)
		}
	}
	return s
}

// isIdent reports whether s is a valid variable or macro name.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
