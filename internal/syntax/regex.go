package syntax

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/vmihailenco/msgpack/v5"
)

// MatchTimeout bounds backtracking for every regex compiled after it is
// set. Zero means no limit. It is the engine's only knob for runaway
// patterns; exceeding it surfaces as a RegexError on the failing line.
var MatchTimeout time.Duration

// Regex wraps a pattern string and compiles it lazily on first use.
// A compiled regex is reused for the lifetime of its SyntaxSet; compile
// errors are sticky. Serialization keeps only the source string.
type Regex struct {
	source string

	once sync.Once
	re   *regexp2.Regexp
	err  error
}

// RegexError reports a pattern that failed to compile or search.
type RegexError struct {
	Source  string
	Context string
	Err     error
}

func (e *RegexError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("syntax: regex %q in context %q: %v", e.Source, e.Context, e.Err)
	}
	return fmt.Sprintf("syntax: regex %q: %v", e.Source, e.Err)
}

func (e *RegexError) Unwrap() error { return e.Err }

// NewRegex wraps source without compiling it.
func NewRegex(source string) *Regex {
	return &Regex{source: source}
}

// Source returns the pattern string.
func (r *Regex) Source() string { return r.source }

func (r *Regex) compiled() (*regexp2.Regexp, error) {
	r.once.Do(func() {
		re, err := regexp2.Compile(r.source, regexp2.None)
		if err != nil {
			r.err = &RegexError{Source: r.source, Err: err}
			return
		}
		if MatchTimeout > 0 {
			re.MatchTimeout = MatchTimeout
		}
		r.re = re
	})
	return r.re, r.err
}

// TryCompile forces compilation and returns any compile error.
func (r *Regex) TryCompile() error {
	_, err := r.compiled()
	return err
}

// IsMatch reports whether the pattern matches anywhere in text.
func (r *Regex) IsMatch(text string) (bool, error) {
	re, err := r.compiled()
	if err != nil {
		return false, err
	}
	m, err := re.FindStringMatch(text)
	if err != nil {
		return false, &RegexError{Source: r.source, Err: err}
	}
	return m != nil, nil
}

// Search looks for the leftmost match at or after the rune offset start.
// Capture positions are written into region as rune offsets.
func (r *Regex) Search(line *Line, start int, region *Region) (bool, error) {
	re, err := r.compiled()
	if err != nil {
		return false, err
	}
	m, err := re.FindRunesMatchStartingAt(line.runes, start)
	if err != nil {
		return false, &RegexError{Source: r.source, Err: err}
	}
	if m == nil {
		return false, nil
	}
	if region != nil {
		region.fill(m)
	}
	return true, nil
}

// EncodeMsgpack serializes the regex as its source string.
func (r *Regex) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(r.source)
}

// DecodeMsgpack restores an uncompiled regex from its source string. The
// receiver must be freshly allocated, which is how the decoder hands it
// over.
func (r *Regex) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	r.source = s
	r.re = nil
	r.err = nil
	return nil
}

// Region holds capture group positions of a match, in rune offsets.
// Index 0 is the whole match; unmatched groups are (-1, -1).
type Region struct {
	pos [][2]int
}

// NewRegion returns an empty region ready for reuse across searches.
func NewRegion() *Region {
	return &Region{pos: make([][2]int, 0, 8)}
}

func (rg *Region) fill(m *regexp2.Match) {
	rg.pos = rg.pos[:0]
	// Groups arrive ordered by group number, whole match first.
	for _, g := range m.Groups() {
		if len(g.Captures) == 0 {
			rg.pos = append(rg.pos, [2]int{-1, -1})
			continue
		}
		c := g.Captures[len(g.Captures)-1]
		rg.pos = append(rg.pos, [2]int{c.Index, c.Index + c.Length})
	}
}

// Pos returns the rune start/end of capture group i, ok=false when the
// group did not participate in the match.
func (rg *Region) Pos(i int) (start, end int, ok bool) {
	if i < 0 || i >= len(rg.pos) || rg.pos[i][0] < 0 {
		return 0, 0, false
	}
	return rg.pos[i][0], rg.pos[i][1], true
}

// Len returns the number of tracked groups.
func (rg *Region) Len() int { return len(rg.pos) }

// Clone returns an independent copy.
func (rg *Region) Clone() *Region {
	cp := &Region{pos: make([][2]int, len(rg.pos))}
	copy(cp.pos, rg.pos)
	return cp
}

// Line is a single input line prepared for rune-indexed searching with
// byte-offset reporting.
type Line struct {
	text   string
	runes  []rune
	byteOf []int // byteOf[i] = byte offset of rune i; has len(runes)+1 entries
}

// NewLine prepares text for searching.
func NewLine(text string) *Line {
	runes := make([]rune, 0, len(text))
	byteOf := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, r)
		byteOf = append(byteOf, i)
	}
	byteOf = append(byteOf, len(text))
	return &Line{text: text, runes: runes, byteOf: byteOf}
}

// Text returns the underlying string.
func (l *Line) Text() string { return l.text }

// RuneCount returns the number of runes in the line.
func (l *Line) RuneCount() int { return len(l.runes) }

// Runes returns the rune slice backing the line.
func (l *Line) Runes() []rune { return l.runes }

// ByteOffset converts a rune offset to a byte offset.
func (l *Line) ByteOffset(runeIdx int) int {
	return l.byteOf[runeIdx]
}

// Slice returns the text between two rune offsets.
func (l *Line) Slice(start, end int) string {
	return l.text[l.byteOf[start]:l.byteOf[end]]
}
