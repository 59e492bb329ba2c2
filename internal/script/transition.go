package script

// The functions below compute control transfers from a Table alone, without
// touching execution state. Line numbers are 0-based physical lines.

// skipTarget returns where execution continues when the opener on line does
// not enter its body: the line after its endloop.
func (t *Table) skipTarget(line int) (int, error) {
	b, ok := t.At(line)
	if !ok || !b.Kind.Opener() {
		return 0, invariantf("no loop block at line %d", line+1)
	}
	return b.Jump + 1, nil
}

// headTarget returns the opener line an endloop branches back to.
func (t *Table) headTarget(endloop int) (int, error) {
	b, ok := t.Opener(endloop)
	if !ok {
		return 0, invariantf("'endloop' at line %d has no loop", endloop+1)
	}
	return b.Marker, nil
}

// nextTarget returns the endloop a "next" on line resumes at and the marker
// of the loop it belongs to.
func (t *Table) nextTarget(line int) (endloop, marker int, err error) {
	b, ok := t.At(line)
	if !ok || b.Kind != BlockNext {
		return 0, 0, invariantf("no 'next' block at line %d", line+1)
	}
	marker, err = t.headTarget(b.Jump)
	if err != nil {
		return 0, 0, err
	}
	return b.Jump, marker, nil
}

// breakTarget returns the endloop of the n-th loop enclosing the "break" on
// line, following the precomputed break chain, and that loop's marker.
func (t *Table) breakTarget(line, n int) (endloop, marker int, err error) {
	b, ok := t.At(line)
	if !ok || b.Kind != BlockBreak {
		return 0, 0, invariantf("no 'break' block at line %d", line+1)
	}
	endloop = b.Jump
	for i := 1; i < n; i++ {
		loop, ok := t.Opener(endloop)
		if !ok {
			return 0, 0, invariantf("'endloop' at line %d has no loop", endloop+1)
		}
		if loop.Break < 0 {
			return 0, 0, runtimef(ErrBreakDepth, "break %d", n)
		}
		endloop = loop.Break
	}
	marker, err = t.headTarget(endloop)
	if err != nil {
		return 0, 0, err
	}
	return endloop, marker, nil
}
