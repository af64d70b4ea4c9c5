package selector_test

import (
	"testing"

	"glint/internal/scope"
	"glint/internal/selector"
)

func stack(t *testing.T, text string) []scope.Scope {
	t.Helper()
	st, err := scope.StackFromString(text)
	if err != nil {
		t.Fatalf("stack %q: %v", text, err)
	}
	return st.Scopes()
}

func TestParseShapes(t *testing.T) {
	sels, err := selector.Parse("source.php meta.preprocessor - string.quoted, source string")
	if err != nil {
		t.Fatal(err)
	}
	if len(sels.List) != 2 {
		t.Fatalf("want 2 selectors, got %d", len(sels.List))
	}
	first := sels.List[0]
	if len(first.Path) != 2 || len(first.Excludes) != 1 {
		t.Errorf("first selector parsed wrong: %+v", first)
	}

	sels, err = selector.Parse("text.xml meta.tag punctuation.separator - text.html - string")
	if err != nil {
		t.Fatal(err)
	}
	if len(sels.List) != 1 || len(sels.List[0].Excludes) != 2 {
		t.Errorf("multiple excludes parsed wrong: %+v", sels.List)
	}

	sels, err = selector.Parse(" -a.b|j.g")
	if err != nil {
		t.Fatal(err)
	}
	if len(sels.List) != 2 {
		t.Fatalf("pipe union parsed wrong: %+v", sels.List)
	}
	if len(sels.List[0].Path) != 0 || len(sels.List[0].Excludes) != 1 {
		t.Errorf("negated empty selector parsed wrong: %+v", sels.List[0])
	}
}

func TestMatching(t *testing.T) {
	target := stack(t, "a.b c.d e.f.g")

	cases := []struct {
		sel   string
		match bool
		atoms int
		depth int
	}{
		{"a.b c e.f", true, 5, 2},
		{"a c.d.e", false, 0, 0},
		{"a.b e.f", true, 4, 2},
		{"c e.f", true, 3, 2},
		{"c.d e.f", true, 4, 2},
		{"a c.d", true, 3, 1},
		{"string", false, 0, 0},
		{"", true, 0, 0},
	}
	for _, c := range cases {
		sel, err := selector.ParseSelector(c.sel)
		if err != nil {
			t.Fatalf("parse %q: %v", c.sel, err)
		}
		p, ok := sel.Match(target)
		if ok != c.match {
			t.Errorf("%q match = %v, want %v", c.sel, ok, c.match)
			continue
		}
		if !ok {
			continue
		}
		if p.Atoms != c.atoms || p.Depth != c.depth {
			t.Errorf("%q scored atoms=%d depth=%d, want atoms=%d depth=%d",
				c.sel, p.Atoms, p.Depth, c.atoms, c.depth)
		}
	}
}

func TestExcludes(t *testing.T) {
	target := stack(t, "a.b c.d j e.f")

	if _, ok := mustSel(t, " - a.b").Match(target); ok {
		t.Errorf("negated a.b should not match a stack containing a.b")
	}
	if _, ok := mustSel(t, " - g.h").Match(target); !ok {
		t.Errorf("negated g.h should match a stack without g.h")
	}
	if _, ok := mustSel(t, "a.b - ").Match(target); ok {
		t.Errorf("empty negative selector excludes everything")
	}
	p, ok := mustSel(t, "c.d - g.h - h.i").Match(target)
	if !ok {
		t.Fatalf("selector with non-matching negatives should match")
	}
	if p.Excluded != 4 {
		t.Errorf("Excluded = %d, want 4", p.Excluded)
	}
}

func TestScoreOrdering(t *testing.T) {
	// spec scenario: "source" vs "source.js" on source.js.meta.function
	target := stack(t, "source.js.meta.function")

	weak, ok := mustSel(t, "source").Match(target)
	if !ok {
		t.Fatal("source should match")
	}
	strong, ok := mustSel(t, "source.js").Match(target)
	if !ok {
		t.Fatal("source.js should match")
	}
	if weak.Atoms != 1 || weak.Depth != 0 {
		t.Errorf("source scored %+v, want atoms=1 depth=0", weak)
	}
	if strong.Atoms != 2 {
		t.Errorf("source.js scored %+v, want atoms=2", strong)
	}
	if strong.Compare(weak) <= 0 {
		t.Errorf("source.js should outrank source")
	}

	// fewer excluded atoms outrank at equal atom counts
	a := selector.MatchPower{Atoms: 2, Excluded: 0, Depth: 0}
	b := selector.MatchPower{Atoms: 2, Excluded: 3, Depth: 5}
	if a.Compare(b) <= 0 {
		t.Errorf("fewer excluded atoms should win")
	}

	// deeper frame wins the final tie
	c := selector.MatchPower{Atoms: 2, Excluded: 0, Depth: 3}
	if c.Compare(a) <= 0 {
		t.Errorf("deeper match should win")
	}
}

func mustSel(t *testing.T, s string) *selector.Selector {
	t.Helper()
	sel, err := selector.ParseSelector(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return &sel
}
