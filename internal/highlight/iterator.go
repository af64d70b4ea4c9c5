package highlight

import (
	"glint/internal/parse"
	"glint/internal/theme"
)

// Span is a run of line text under one style.
type Span struct {
	Style theme.Style
	Text  string
}

// Iterator walks a line and its parser operations, yielding styled
// spans. The concatenation of all span texts is exactly the line.
type Iterator struct {
	state *State
	h     *Highlighter
	ops   []parse.Op
	line  string

	index int
	pos   int
}

// NewIterator starts iterating a parsed line.
func NewIterator(state *State, h *Highlighter, ops []parse.Op, line string) *Iterator {
	return &Iterator{state: state, h: h, ops: ops, line: line}
}

// Next yields the next non-empty span. ok is false when the line is
// exhausted; a non-nil error means the op stream underflowed the stack.
func (it *Iterator) Next() (Span, bool, error) {
	for {
		if it.pos == len(it.line) && it.index >= len(it.ops) {
			return Span{}, false, nil
		}
		end := len(it.line)
		if it.index < len(it.ops) {
			end = it.ops[it.index].Offset
		}
		style := it.state.Style()
		text := it.line[it.pos:end]

		if it.index < len(it.ops) {
			if err := it.state.ApplyOp(it.h, it.ops[it.index].Op); err != nil {
				return Span{}, false, err
			}
		}
		it.pos = end
		it.index++

		if text != "" {
			return Span{Style: style, Text: text}, true, nil
		}
	}
}

// Collect drains the iterator into a slice.
func (it *Iterator) Collect() ([]Span, error) {
	var out []Span
	for {
		span, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, span)
	}
}
