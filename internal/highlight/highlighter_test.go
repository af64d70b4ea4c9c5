package highlight_test

import (
	"fmt"
	"strings"
	"testing"

	"glint/internal/highlight"
	"glint/internal/parse"
	"glint/internal/scope"
	"glint/internal/selector"
	"glint/internal/syntax"
	"glint/internal/testkit"
	"glint/internal/theme"
)

func parseStateFor(set *syntax.Set, name string) (*parse.State, error) {
	syn := set.FindSyntaxByName(name)
	if syn == nil {
		return nil, fmt.Errorf("syntax %q not in set", name)
	}
	return parse.NewState(syn)
}

func buildSet(t *testing.T, srcs ...string) *syntax.Set {
	t.Helper()
	b := syntax.NewBuilder()
	if err := b.AddPlainTextSyntax(); err != nil {
		t.Fatal(err)
	}
	for _, src := range srcs {
		def, err := syntax.LoadDefinition(src, true)
		if err != nil {
			t.Fatal(err)
		}
		b.Add(def)
	}
	set, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func colorOf(hexByte uint8) theme.Color {
	return theme.Color{R: hexByte, G: hexByte, B: hexByte, A: 0xFF}
}

func item(t *testing.T, sel string, style theme.StyleModifier) theme.Item {
	t.Helper()
	sels, err := selector.Parse(sel)
	if err != nil {
		t.Fatalf("selector %q: %v", sel, err)
	}
	return theme.Item{Selectors: sels, Style: style}
}

func testTheme(t *testing.T) *theme.Theme {
	t.Helper()
	fg := colorOf(0xc0)
	bg := colorOf(0x10)
	kw := theme.Color{R: 0xb2, G: 0x94, B: 0xbb, A: 0xFF}
	str := theme.Color{R: 0xb5, G: 0xbd, B: 0x68, A: 0xFF}
	bold := theme.Bold
	return &theme.Theme{
		Name:     "test",
		Settings: theme.Settings{Foreground: &fg, Background: &bg},
		Items: []theme.Item{
			item(t, "keyword", theme.StyleModifier{Foreground: &kw, FontStyle: &bold}),
			item(t, "string", theme.StyleModifier{Foreground: &str}),
		},
	}
}

func TestPlainTextDefaultStyle(t *testing.T) {
	set := buildSet(t)
	th := testTheme(t)
	lh, err := highlight.NewLineHighlighter(set.PlainText(), th)
	if err != nil {
		t.Fatal(err)
	}
	spans, err := lh.HighlightLine("hello world\n", set)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 {
		t.Fatalf("want a single span, got %d", len(spans))
	}
	if spans[0].Text != "hello world\n" {
		t.Errorf("span text = %q", spans[0].Text)
	}
	if spans[0].Style != th.Default() {
		t.Errorf("span style = %+v, want theme default", spans[0].Style)
	}
}

const kwSyntax = `
name: KW
scope: source.kw
contexts:
  main:
    - match: \bvar\b
      scope: keyword.control.kw
    - match: '"[^"]*"'
      scope: string.quoted.kw
`

func TestHighlightLineStyles(t *testing.T) {
	set := buildSet(t, kwSyntax)
	th := testTheme(t)
	lh, err := highlight.NewLineHighlighter(set.FindSyntaxByName("KW"), th)
	if err != nil {
		t.Fatal(err)
	}
	line := "var x = \"hi\";\n"
	spans, err := lh.HighlightLine(line, set)
	if err != nil {
		t.Fatal(err)
	}
	if err := testkit.CheckSpanInvariants(line, spans); err != nil {
		t.Fatal(err)
	}

	var kwSpan, strSpan *highlight.Span
	for i := range spans {
		switch spans[i].Text {
		case "var":
			kwSpan = &spans[i]
		case `"hi"`:
			strSpan = &spans[i]
		}
	}
	if kwSpan == nil || strSpan == nil {
		t.Fatalf("spans missing: %+v", spans)
	}
	if kwSpan.Style.FontStyle != theme.Bold {
		t.Errorf("keyword should be bold")
	}
	if kwSpan.Style.Foreground == strSpan.Style.Foreground {
		t.Errorf("keyword and string should differ in color")
	}
	if kwSpan.Style.Background != th.Default().Background {
		t.Errorf("background should come from the defaults")
	}
}

// Attributes resolve independently: a later item that only defines
// background must not strip an earlier item's foreground.
func TestAttributeWiseResolution(t *testing.T) {
	red := theme.Color{R: 0xFF, A: 0xFF}
	blue := theme.Color{B: 0xFF, A: 0xFF}
	th := &theme.Theme{
		Items: []theme.Item{
			item(t, "source.js", theme.StyleModifier{Foreground: &red}),
			item(t, "source.js", theme.StyleModifier{Background: &blue}),
		},
	}
	h := highlight.New(th)
	stack := []scope.Scope{scope.MustNew("source.js")}
	mod := h.ModifierFor(stack)
	if mod.Foreground == nil || *mod.Foreground != red {
		t.Errorf("foreground lost: %+v", mod)
	}
	if mod.Background == nil || *mod.Background != blue {
		t.Errorf("background lost: %+v", mod)
	}

	st := h.Default().Apply(mod)
	if st.Foreground != red || st.Background != blue {
		t.Errorf("resolved style = %+v", st)
	}
}

// With both defining the same attribute, the later equal-scoring rule
// wins.
func TestRuleOrderBreaksTies(t *testing.T) {
	red := theme.Color{R: 0xFF, A: 0xFF}
	green := theme.Color{G: 0xFF, A: 0xFF}
	th := &theme.Theme{
		Items: []theme.Item{
			item(t, "source.js", theme.StyleModifier{Foreground: &red}),
			item(t, "source.js", theme.StyleModifier{Foreground: &green}),
		},
	}
	h := highlight.New(th)
	mod := h.ModifierFor([]scope.Scope{scope.MustNew("source.js")})
	if mod.Foreground == nil || *mod.Foreground != green {
		t.Errorf("later rule should win the tie: %+v", mod)
	}
}

// Spec scenario: "source" scores 1 atom, "source.js" scores 2; the more
// specific rule wins shared attributes.
func TestPrefixSelectorScoring(t *testing.T) {
	weak := theme.Color{R: 0x11, A: 0xFF}
	strong := theme.Color{R: 0x22, A: 0xFF}
	th := &theme.Theme{
		Items: []theme.Item{
			// deliberately later in rule order but weaker in atoms
			item(t, "source.js", theme.StyleModifier{Foreground: &strong}),
			item(t, "source", theme.StyleModifier{Foreground: &weak}),
		},
	}
	h := highlight.New(th)
	mod := h.ModifierFor([]scope.Scope{scope.MustNew("source.js.meta.function")})
	if mod.Foreground == nil || *mod.Foreground != strong {
		t.Errorf("source.js should outrank source: %+v", mod)
	}
}

func TestEveryByteCoveredExactlyOnce(t *testing.T) {
	set := buildSet(t, kwSyntax)
	th := testTheme(t)
	lh, err := highlight.NewLineHighlighter(set.FindSyntaxByName("KW"), th)
	if err != nil {
		t.Fatal(err)
	}
	lines := []string{
		"var x = \"hi\";\n",
		"\n",
		"plain words var \"unterminated\n",
		"π unicode \"s\" var\n",
	}
	for _, line := range lines {
		spans, err := lh.HighlightLine(line, set)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if err := testkit.CheckSpanInvariants(line, spans); err != nil {
			t.Errorf("%q: %v", line, err)
		}
	}
}

// Parsing all lines first and highlighting afterwards must agree with
// interleaved parse+highlight.
func TestBatchedEqualsInterleaved(t *testing.T) {
	set := buildSet(t, kwSyntax)
	th := testTheme(t)
	lines := []string{"var a = \"x\";\n", "b var\n", "\"multi var\n", "done\n"}

	interleaved := make([][]highlight.Span, 0, len(lines))
	lh, err := highlight.NewLineHighlighter(set.FindSyntaxByName("KW"), th)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range lines {
		spans, err := lh.HighlightLine(line, set)
		if err != nil {
			t.Fatal(err)
		}
		interleaved = append(interleaved, spans)
	}

	// batch: parse every line first, then run the highlight state over
	// the recorded ops
	ps, err := parseStateFor(set, "KW")
	if err != nil {
		t.Fatal(err)
	}
	allOps := make([][]parse.Op, 0, len(lines))
	for _, line := range lines {
		ops, err := ps.ParseLine(line, set)
		if err != nil {
			t.Fatal(err)
		}
		allOps = append(allOps, ops)
	}
	h := highlight.New(th)
	hs := highlight.NewState(h)
	for i, line := range lines {
		spans, err := highlight.NewIterator(hs, h, allOps[i], line).Collect()
		if err != nil {
			t.Fatal(err)
		}
		if len(spans) != len(interleaved[i]) {
			t.Fatalf("line %d: %d spans vs %d", i, len(spans), len(interleaved[i]))
		}
		for j := range spans {
			if spans[j] != interleaved[i][j] {
				t.Fatalf("line %d span %d: %+v vs %+v", i, j, spans[j], interleaved[i][j])
			}
		}
	}
}

func TestScopeRangeIteratorCoversLine(t *testing.T) {
	set := buildSet(t, kwSyntax)
	ps, err := parseStateFor(set, "KW")
	if err != nil {
		t.Fatal(err)
	}
	line := "var \"s\" rest\n"
	ops, err := ps.ParseLine(line, set)
	if err != nil {
		t.Fatal(err)
	}
	stack := scope.NewStack()
	it := highlight.NewScopeRangeIterator(ops, line)
	var rebuilt strings.Builder
	sawKeywordStack := false
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		if err := stack.Apply(r.Op); err != nil {
			t.Fatal(err)
		}
		rebuilt.WriteString(it.Text(r))
		if it.Text(r) == "var" && strings.Contains(stack.String(), "keyword.control.kw") {
			sawKeywordStack = true
		}
	}
	if rebuilt.String() != line {
		t.Errorf("ranges cover %q", rebuilt.String())
	}
	if !sawKeywordStack {
		t.Errorf("keyword range not paired with its stack")
	}
}

func TestStateSnapshotResumes(t *testing.T) {
	set := buildSet(t, kwSyntax)
	th := testTheme(t)
	lh, err := highlight.NewLineHighlighter(set.FindSyntaxByName("KW"), th)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lh.HighlightLine("var a\n", set); err != nil {
		t.Fatal(err)
	}

	ps := lh.ParseState().Clone()
	hs := lh.HighlightState().Clone()
	h := highlight.New(th)

	// resumed copy and original agree on the next line
	line := "var b \"s\"\n"
	want, err := lh.HighlightLine(line, set)
	if err != nil {
		t.Fatal(err)
	}
	ops, err := ps.ParseLine(line, set)
	if err != nil {
		t.Fatal(err)
	}
	got, err := highlight.NewIterator(hs, h, ops, line).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("resumed spans = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("span %d: %+v vs %+v", i, got[i], want[i])
		}
	}
}
