package ytdlp

import "strings"

// lineRing keeps the last N stderr lines for exit classification and
// error reporting without holding the whole stream in memory.
type lineRing struct {
	lines []string
	max   int
	start int
	count int
}

func newLineRing(max int) *lineRing {
	if max <= 0 {
		max = 50
	}
	return &lineRing{lines: make([]string, max), max: max}
}

func (r *lineRing) Append(line string) {
	idx := (r.start + r.count) % r.max
	r.lines[idx] = line
	if r.count < r.max {
		r.count++
	} else {
		r.start = (r.start + 1) % r.max
	}
}

func (r *lineRing) Tail() []string {
	out := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(r.start+i)%r.max])
	}
	return out
}

func (r *lineRing) String() string {
	return strings.Join(r.Tail(), "\n")
}
