package highlight

import (
	"bufio"
	"os"

	"glint/internal/parse"
	"glint/internal/scope"
	"glint/internal/syntax"
	"glint/internal/theme"
)

// LineHighlighter goes straight from lines of text to styled spans,
// keeping the parse and highlight state across lines. This is the only
// layer that implicitly resets per-line caches.
type LineHighlighter struct {
	highlighter    *Highlighter
	parseState     *parse.State
	highlightState *State
}

// NewLineHighlighter sets up highlighting of one file's lines with the
// given grammar and theme.
func NewLineHighlighter(syn *syntax.Syntax, t *theme.Theme) (*LineHighlighter, error) {
	ps, err := parse.NewState(syn)
	if err != nil {
		return nil, err
	}
	h := New(t)
	return &LineHighlighter{
		highlighter:    h,
		parseState:     ps,
		highlightState: NewState(h),
	}, nil
}

// ParseState exposes the parser state, e.g. for snapshotting.
func (lh *LineHighlighter) ParseState() *parse.State { return lh.parseState }

// HighlightState exposes the highlight state, e.g. for snapshotting.
func (lh *LineHighlighter) HighlightState() *State { return lh.highlightState }

// SetIgnoreErrors makes regex failures disable the offending pattern
// instead of failing the line.
func (lh *LineHighlighter) SetIgnoreErrors(ignore bool) {
	lh.parseState.IgnoreErrors = ignore
}

// HighlightLine parses and styles one line. Feed lines in order; the
// set must be the one the grammar came from.
func (lh *LineHighlighter) HighlightLine(line string, set *syntax.Set) ([]Span, error) {
	ops, perr := lh.parseState.ParseLine(line, set)
	// even on error the partial ops are balanced; style them so the
	// caller gets well-formed output up to the failure
	spans, herr := NewIterator(lh.highlightState, lh.highlighter, ops, line).Collect()
	if perr != nil {
		return spans, perr
	}
	return spans, herr
}

// FileHighlighter pairs a buffered reader with a LineHighlighter, with
// the grammar picked from the file path or first line.
type FileHighlighter struct {
	Scanner *bufio.Scanner
	Lines   *LineHighlighter

	file *os.File
}

// NewFileHighlighter opens path and picks a grammar for it, falling back
// to Plain Text.
func NewFileHighlighter(path string, set *syntax.Set, t *theme.Theme) (*FileHighlighter, error) {
	syn, err := set.FindSyntaxForFile(path)
	if err != nil {
		return nil, err
	}
	if syn == nil {
		syn = set.PlainText()
	}
	lh, err := NewLineHighlighter(syn, t)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileHighlighter{
		Scanner: bufio.NewScanner(f),
		Lines:   lh,
		file:    f,
	}, nil
}

// Close releases the underlying file.
func (fh *FileHighlighter) Close() error {
	return fh.file.Close()
}

// ScopeRange is a byte range of the line and the operation that applies
// at its start.
type ScopeRange struct {
	Start, End int
	Op         scope.StackOp
}

// ScopeRangeIterator yields line ranges alongside the scope operations,
// for consumers that want scopes without styles (classed HTML output,
// analysis). Apply each yielded op to your own stack; the stack then
// describes the yielded range. Ranges may be empty, skip them if
// unwanted.
type ScopeRangeIterator struct {
	ops   []parse.Op
	line  string
	index int
	last  int
}

// NewScopeRangeIterator iterates ops over line.
func NewScopeRangeIterator(ops []parse.Op, line string) *ScopeRangeIterator {
	return &ScopeRangeIterator{ops: ops, line: line}
}

// Next yields the next range. The first range precedes the first op and
// arrives with a Noop.
func (it *ScopeRangeIterator) Next() (ScopeRange, bool) {
	if it.index > len(it.ops) {
		return ScopeRange{}, false
	}
	end := len(it.line)
	if it.index < len(it.ops) {
		end = it.ops[it.index].Offset
	}
	r := ScopeRange{Start: it.last, End: end, Op: scope.Noop()}
	if it.index > 0 {
		r.Op = it.ops[it.index-1].Op
	}
	it.last = end
	it.index++
	return r, true
}

// Text returns the line text of a range.
func (it *ScopeRangeIterator) Text(r ScopeRange) string {
	return it.line[r.Start:r.End]
}
