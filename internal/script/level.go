package script

// level is one frame of if/loop nesting during a run.
type level struct {
	live      bool
	loopspawn bool
	ifwastrue bool
	elseseen  bool

	// Loop levels only.
	marker int
	iter   int
	iterOK bool // items has been built
	items  []any
	next   int
}

// levelStack is the execution-level stack of one engine run.
// The bottom level is the live root and is never popped.
type levelStack struct {
	levels []level
}

func newLevelStack() levelStack {
	return levelStack{levels: []level{{live: true}}}
}

func (s *levelStack) top() *level {
	return &s.levels[len(s.levels)-1]
}

// parent returns the level below the top.
func (s *levelStack) parent() *level {
	return &s.levels[len(s.levels)-2]
}

func (s *levelStack) depth() int {
	return len(s.levels)
}

func (s *levelStack) atRoot() bool {
	return len(s.levels) == 1
}

func (s *levelStack) push(l level) {
	s.levels = append(s.levels, l)
}

// pop removes and returns the top level. The root is never removed.
func (s *levelStack) pop() (level, bool) {
	if s.atRoot() {
		return level{}, false
	}
	l := s.levels[len(s.levels)-1]
	s.levels[len(s.levels)-1] = level{}
	s.levels = s.levels[:len(s.levels)-1]
	return l, true
}
