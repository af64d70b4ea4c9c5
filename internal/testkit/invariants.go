package testkit

import (
	"fmt"

	"glint/internal/highlight"
	"glint/internal/parse"
	"glint/internal/scope"
)

// CheckSpanInvariants runs the output invariants on a highlighted line:
// 1) spans concatenate to exactly the input line (no gaps, no overlaps)
// 2) no span is empty
func CheckSpanInvariants(line string, spans []highlight.Span) error {
	var rebuilt string
	for i, sp := range spans {
		if sp.Text == "" {
			return fmt.Errorf("span %d is empty", i)
		}
		rebuilt += sp.Text
	}
	if rebuilt != line {
		return fmt.Errorf("spans cover %q, want %q", rebuilt, line)
	}
	return nil
}

// CheckOpInvariants verifies a parsed line's operation stream:
// 1) offsets are within the line and non-decreasing
// 2) applying every op to the stack succeeds
// 3) the stack's running hash matches a recomputation from its contents
func CheckOpInvariants(line string, ops []parse.Op, stack *scope.Stack) error {
	last := 0
	for i, op := range ops {
		if op.Offset < last || op.Offset > len(line) {
			return fmt.Errorf("op %d offset %d out of order (line len %d)", i, op.Offset, len(line))
		}
		last = op.Offset
		if err := stack.Apply(op.Op); err != nil {
			return fmt.Errorf("op %d (%v) failed: %w", i, op.Op, err)
		}
		if stack.Hash() != scope.HashOf(stack.Scopes()) {
			return fmt.Errorf("op %d: running hash diverged from contents", i)
		}
	}
	return nil
}
