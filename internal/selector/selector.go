// Package selector implements TextMate scope selectors and their match
// scoring against scope stacks.
package selector

import (
	"strings"

	"glint/internal/scope"
)

// Selector is one conjunctive selector: a sequence of scopes that must
// appear in order as prefix-matches of stack entries, plus negative
// sequences that must not match.
type Selector struct {
	Path     []scope.Scope
	Excludes [][]scope.Scope
}

// Selectors is a disjunction of selectors; it matches when any member does.
type Selectors struct {
	List []Selector
}

// MatchPower scores a selector match. Comparison order: more matched
// atoms, then fewer atoms in the negative selectors, then a deeper
// matched stack frame. Residual ties are the caller's to break (theme
// rule order).
type MatchPower struct {
	Atoms    int // total atoms in the matched path
	Excluded int // total atoms across negative selectors
	Depth    int // stack index of the deepest matched frame
}

// Compare returns -1, 0 or 1 ordering p against o, larger = stronger.
func (p MatchPower) Compare(o MatchPower) int {
	if p.Atoms != o.Atoms {
		if p.Atoms < o.Atoms {
			return -1
		}
		return 1
	}
	if p.Excluded != o.Excluded {
		// fewer excluded atoms is the stronger claim
		if p.Excluded > o.Excluded {
			return -1
		}
		return 1
	}
	if p.Depth != o.Depth {
		if p.Depth < o.Depth {
			return -1
		}
		return 1
	}
	return 0
}

// pathMatch checks the ordered prefix-subsequence condition and returns
// the index of the stack frame the last selector scope matched.
func pathMatch(path []scope.Scope, stack []scope.Scope) (depth int, ok bool) {
	if len(path) == 0 {
		return 0, true
	}
	sel := 0
	for i, sc := range stack {
		if path[sel].IsPrefixOf(sc) {
			sel++
			if sel == len(path) {
				return i, true
			}
		}
	}
	return 0, false
}

func atomCount(path []scope.Scope) int {
	n := 0
	for _, s := range path {
		n += s.Len()
	}
	return n
}

// Match scores the selector against a stack (bottom first). ok is false
// when it does not match.
func (s *Selector) Match(stack []scope.Scope) (MatchPower, bool) {
	excluded := 0
	for _, ex := range s.Excludes {
		// an empty negative selector excludes everything
		if len(ex) == 0 {
			return MatchPower{}, false
		}
		if _, bad := pathMatch(ex, stack); bad {
			return MatchPower{}, false
		}
		excluded += atomCount(ex)
	}
	depth, ok := pathMatch(s.Path, stack)
	if !ok {
		return MatchPower{}, false
	}
	return MatchPower{
		Atoms:    atomCount(s.Path),
		Excluded: excluded,
		Depth:    depth,
	}, true
}

// SingleScope returns the selector's scope if it is a bare one-scope
// selector with no excludes.
func (s *Selector) SingleScope() (scope.Scope, bool) {
	if len(s.Path) != 1 || len(s.Excludes) != 0 {
		return scope.Scope{}, false
	}
	return s.Path[0], true
}

// Match returns the strongest member score, or ok=false when nothing
// matches.
func (ss *Selectors) Match(stack []scope.Scope) (MatchPower, bool) {
	var best MatchPower
	found := false
	for i := range ss.List {
		if p, ok := ss.List[i].Match(stack); ok {
			if !found || p.Compare(best) >= 0 {
				best = p
				found = true
			}
		}
	}
	return best, found
}

// ParseSelector parses a single selector: a space separated scope list
// optionally followed by " -"-prefixed negative lists.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	for i, part := range strings.Split(s, " -") {
		stack, err := parsePath(part)
		if err != nil {
			return Selector{}, err
		}
		if i == 0 {
			sel.Path = stack
		} else {
			sel.Excludes = append(sel.Excludes, stack)
		}
	}
	return sel, nil
}

// Parse parses a comma or pipe separated selector union.
func Parse(s string) (Selectors, error) {
	var out Selectors
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		sel, err := ParseSelector(part)
		if err != nil {
			return Selectors{}, err
		}
		out.List = append(out.List, sel)
	}
	if out.List == nil {
		// a blank selector list is the universal selector
		out.List = []Selector{{}}
	}
	return out, nil
}

func parsePath(s string) ([]scope.Scope, error) {
	var path []scope.Scope
	for _, name := range strings.Fields(s) {
		sc, err := scope.New(name)
		if err != nil {
			return nil, err
		}
		path = append(path, sc)
	}
	return path, nil
}
