package script

import (
	"fmt"
)

// BlockKind identifies the keyword that produced a LoopBlock.
type BlockKind uint8

// Loop block kinds.
const (
	BlockWhile BlockKind = iota + 1
	BlockUntil
	BlockFor
	BlockLoop
	BlockBreak
	BlockNext
)

var blockKeywords = map[string]BlockKind{
	kwWhile: BlockWhile,
	kwUntil: BlockUntil,
	kwFor:   BlockFor,
	kwLoop:  BlockLoop,
	kwBreak: BlockBreak,
	kwNext:  BlockNext,
}

// String returns the keyword for k.
func (k BlockKind) String() string {
	switch k {
	case BlockWhile:
		return kwWhile
	case BlockUntil:
		return kwUntil
	case BlockFor:
		return kwFor
	case BlockLoop:
		return kwLoop
	case BlockBreak:
		return kwBreak
	case BlockNext:
		return kwNext
	default:
		return "unknown"
	}
}

// Opener reports whether k starts a loop.
func (k BlockKind) Opener() bool {
	return k >= BlockWhile && k <= BlockLoop
}

// LoopBlock pairs a loop keyword line with its endloop.
// Lines are 0-based indices into the macro's physical lines.
type LoopBlock struct {
	Kind BlockKind
	// Marker is the line holding the keyword.
	Marker int
	// Jump is the line of the matching endloop.
	Jump int
	// Break is the endloop of the enclosing loop, or -1. Only openers
	// carry it; "break N" follows it N-1 times.
	Break int
}

// Table is the resolved control-flow table of one macro.
// A Table is immutable once built.
type Table struct {
	name     string
	blocks   []LoopBlock
	byMarker map[int]int
	byJump   map[int]int
}

// Name returns the macro name the table was built for.
func (t *Table) Name() string { return t.name }

// Len returns the number of blocks.
func (t *Table) Len() int { return len(t.blocks) }

// Blocks returns a copy of the blocks in line order.
func (t *Table) Blocks() []LoopBlock {
	out := make([]LoopBlock, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// At returns the block whose keyword is on line.
func (t *Table) At(line int) (LoopBlock, bool) {
	i, ok := t.byMarker[line]
	if !ok {
		return LoopBlock{}, false
	}
	return t.blocks[i], true
}

// Opener returns the loop opener closed by the endloop on line.
func (t *Table) Opener(endloop int) (LoopBlock, bool) {
	i, ok := t.byJump[endloop]
	if !ok {
		return LoopBlock{}, false
	}
	return t.blocks[i], true
}

// Equal reports whether two tables hold the same blocks.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.blocks) != len(o.blocks) {
		return false
	}
	for i := range t.blocks {
		if t.blocks[i] != o.blocks[i] {
			return false
		}
	}
	return true
}

type structEntry struct {
	keyword  string
	line     int
	elseSeen bool
}

// Resolve scans lines once and builds the control-flow table for the macro
// called name. Keywords must begin a physical line; continuation lines are
// not merged here.
//
// Every opener must be closed by endloop, every break/next must sit inside a
// loop, if/endif must nest properly with loops, and macro/endmacro must
// balance. Any violation is a KindCompile *Error and no table is returned.
func Resolve(name string, lines []string) (*Table, error) {
	t := &Table{
		name:     name,
		byMarker: make(map[int]int),
		byJump:   make(map[int]int),
	}

	var (
		pending   []int // block indices waiting for an endloop
		structure []structEntry
		macros    int
		macroLine int
	)

	fail := func(line int, format string, args ...any) (*Table, error) {
		return nil, &Error{
			Kind: KindCompile,
			Name: name,
			Line: line + 1,
			Err:  fmt.Errorf("%w: "+format, append([]any{ErrUnmatched}, args...)...),
		}
	}

	for i, raw := range lines {
		if skippable(raw) {
			continue
		}
		kw, _ := splitKeyword(raw)

		if kind, ok := blockKeywords[kw]; ok {
			t.byMarker[i] = len(t.blocks)
			pending = append(pending, len(t.blocks))
			t.blocks = append(t.blocks, LoopBlock{Kind: kind, Marker: i, Jump: -1, Break: -1})
			if kind.Opener() {
				structure = append(structure, structEntry{keyword: kw, line: i})
			}
			continue
		}

		switch kw {
		case kwEndloop:
			if n := len(structure); n == 0 || structure[n-1].keyword == kwIf {
				if n > 0 {
					return fail(structure[n-1].line, "'if' without 'endif' before 'endloop' at line %d", i+1)
				}
				return fail(i, "'endloop' without loop")
			}
			structure = structure[:len(structure)-1]

			opener := -1
			for len(pending) > 0 {
				j := pending[len(pending)-1]
				pending = pending[:len(pending)-1]
				t.blocks[j].Jump = i
				if t.blocks[j].Kind.Opener() {
					opener = j
					break
				}
			}
			if opener < 0 {
				return fail(i, "'endloop' without loop")
			}
			t.byJump[i] = opener
			for k := len(pending) - 1; k >= 0; k-- {
				if p := t.blocks[pending[k]]; p.Kind.Opener() {
					t.blocks[opener].Break = p.Marker
					break
				}
			}

		case kwIf:
			structure = append(structure, structEntry{keyword: kw, line: i})

		case kwElsif, kwElse, kwEndif:
			if n := len(structure); n == 0 || structure[n-1].keyword != kwIf {
				if n > 0 {
					return fail(structure[n-1].line, "'%s' without 'endloop' before '%s' at line %d", structure[n-1].keyword, kw, i+1)
				}
				return fail(i, "'%s' without 'if'", kw)
			}
			top := &structure[len(structure)-1]
			switch {
			case kw == kwEndif:
				structure = structure[:len(structure)-1]
			case top.elseSeen:
				return fail(i, "'%s' after 'else'", kw)
			case kw == kwElse:
				top.elseSeen = true
			}

		case kwMacro:
			macros++
			macroLine = i

		case kwEndmacro:
			macros--
			if macros < 0 {
				return fail(i, "'endmacro' without 'macro'")
			}
		}
	}

	for _, j := range pending {
		b := t.blocks[j]
		if b.Kind.Opener() {
			return fail(b.Marker, "'%s' without 'endloop'", b.Kind)
		}
		return fail(b.Marker, "'%s' outside loop", b.Kind)
	}
	if len(structure) > 0 {
		s := structure[len(structure)-1]
		return fail(s.line, "'%s' without 'endif'", s.keyword)
	}
	if macros != 0 {
		return fail(macroLine, "'macro' without 'endmacro'")
	}

	// Rewrite each opener's break target from the parent's marker line to
	// the parent's endloop line.
	for i := range t.blocks {
		b := &t.blocks[i]
		if !b.Kind.Opener() || b.Break < 0 {
			continue
		}
		parent, ok := t.byMarker[b.Break]
		if !ok {
			return fail(b.Marker, "loop parent at line %d not found", b.Break+1)
		}
		b.Break = t.blocks[parent].Jump
	}

	return t, nil
}
