package script

import "strings"

// cursor walks the physical lines of a macro.
//
// In normal mode next returns logical lines: blank and comment lines are
// skipped and backslash continuations are merged. In recording mode next
// returns every physical line verbatim, for capturing nested macro bodies.
type cursor struct {
	lines     []string
	pc        int
	recording bool
}

// next returns the index of the first physical line of the next logical
// line and its text.
func (c *cursor) next() (int, string, bool) {
	if c.recording {
		if c.pc >= len(c.lines) {
			return 0, "", false
		}
		i := c.pc
		c.pc++
		return i, c.lines[i], true
	}

	for c.pc < len(c.lines) && skippable(c.lines[c.pc]) {
		c.pc++
	}
	if c.pc >= len(c.lines) {
		return 0, "", false
	}

	start := c.pc
	text := strings.TrimSpace(c.lines[c.pc])
	c.pc++
	for strings.HasSuffix(text, "\\") && c.pc < len(c.lines) {
		text = strings.TrimSpace(strings.TrimSuffix(text, "\\")) + " " + strings.TrimSpace(c.lines[c.pc])
		c.pc++
	}
	text = strings.TrimSpace(strings.TrimSuffix(text, "\\"))
	return start, text, true
}

// jump moves the cursor so the next read starts at line.
func (c *cursor) jump(line int) {
	c.pc = line
}
