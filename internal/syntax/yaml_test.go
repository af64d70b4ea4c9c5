package syntax_test

import (
	"errors"
	"strings"
	"testing"

	"glint/internal/scope"
	"glint/internal/syntax"
)

func loadDef(t *testing.T, src string) *syntax.Definition {
	t.Helper()
	def, err := syntax.LoadDefinition(src, true)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	return def
}

func TestLoadMinimal(t *testing.T) {
	def := loadDef(t, "name: C\nscope: source.c\ncontexts: {main: []}")
	if def.Name != "C" {
		t.Errorf("Name = %q", def.Name)
	}
	if def.Scope != scope.MustNew("source.c") {
		t.Errorf("Scope = %v", def.Scope)
	}
	if len(def.FileExtensions) != 0 || def.Hidden {
		t.Errorf("unexpected extensions/hidden: %+v", def)
	}
	// the loader synthesizes the start contexts
	for _, name := range []string{"__start", "__main", "main"} {
		if def.Contexts[name] == nil {
			t.Errorf("missing context %q", name)
		}
	}
}

func TestLoadFullHeader(t *testing.T) {
	def := loadDef(t, `
name: C
scope: source.c
file_extensions: [c, h]
hidden_file_extensions: [inl]
first_line_match: '-[*]- C -[*]-'
hidden: true
variables:
  ident: '[QY]+'
contexts:
  main:
    - match: '\b(if|else|{{ident}})\b'
      scope: keyword.control.c keyword.looping.c
      captures:
        1: meta.preprocessor.c++
      push: [string, 'scope:source.c#main', 'CSS.sublime-syntax#rule-list-body']
      with_prototype:
        - match: wow
          pop: true
    - match: '"'
      push: string
  string:
    - meta_scope: string.quoted.double.c
    - meta_include_prototype: false
    - match: '\\.'
      scope: constant.character.escape.c
    - match: '"'
      pop: true
`)
	if !def.Hidden || def.FirstLineMatch == "" {
		t.Errorf("header fields lost: %+v", def)
	}
	if def.Variables["ident"] != "[QY]+" {
		t.Errorf("variables lost")
	}
	if got := def.FileExtensions; len(got) != 2 || got[0] != "c" {
		t.Errorf("file_extensions = %v", got)
	}
	if got := def.HiddenFileExtensions; len(got) != 1 || got[0] != "inl" {
		t.Errorf("hidden_file_extensions = %v", got)
	}

	mainCtx := def.Contexts["main"]
	// top-level scope is prepended to main's content scope
	if len(mainCtx.MetaContentScope) != 1 || mainCtx.MetaContentScope[0] != scope.MustNew("source.c") {
		t.Errorf("main meta_content_scope = %v", mainCtx.MetaContentScope)
	}
	first := mainCtx.Patterns[0].Match
	if first == nil {
		t.Fatalf("first pattern is not a match rule")
	}
	// the variable is expanded into the regex
	if !strings.Contains(first.Regex.Source(), "[QY]+") {
		t.Errorf("variable not expanded: %q", first.Regex.Source())
	}
	if len(first.Scope) != 2 {
		t.Errorf("rule scope = %v", first.Scope)
	}
	if len(first.Captures) != 1 || first.Captures[0].Group != 1 {
		t.Errorf("captures = %+v", first.Captures)
	}
	if first.Operation.Kind != syntax.OpPush || len(first.Operation.Refs) != 3 {
		t.Fatalf("operation = %+v", first.Operation)
	}
	refs := first.Operation.Refs
	if refs[0].Kind != syntax.RefNamed || refs[0].Name != "string" {
		t.Errorf("ref 0 = %+v", refs[0])
	}
	if refs[1].Kind != syntax.RefByScope || refs[1].SubContext != "main" {
		t.Errorf("ref 1 = %+v", refs[1])
	}
	if refs[2].Kind != syntax.RefFile || refs[2].Name != "CSS" || refs[2].SubContext != "rule-list-body" {
		t.Errorf("ref 2 = %+v", refs[2])
	}
	if first.WithPrototype == nil {
		t.Errorf("with_prototype lost")
	}

	str := def.Contexts["string"]
	if len(str.MetaScope) != 1 || str.MetaScope[0] != scope.MustNew("string.quoted.double.c") {
		t.Errorf("string meta_scope = %v", str.MetaScope)
	}
	if str.MetaIncludePrototype {
		t.Errorf("meta_include_prototype should be false")
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	_, err := syntax.LoadDefinition(`
name: X
scope: source.x
frobnicate: true
contexts: {main: []}
`, true)
	var gerr *syntax.GrammarError
	if !errors.As(err, &gerr) {
		t.Fatalf("want GrammarError for unknown top-level key, got %v", err)
	}

	_, err = syntax.LoadDefinition(`
name: X
scope: source.x
contexts:
  main:
    - match: a
      scop: b
`, true)
	if !errors.As(err, &gerr) {
		t.Fatalf("want GrammarError for unknown rule key, got %v", err)
	}
}

func TestConflictingOperationsRejected(t *testing.T) {
	_, err := syntax.LoadDefinition(`
name: X
scope: source.x
contexts:
  main:
    - match: a
      push: main
      set: main
`, true)
	var gerr *syntax.GrammarError
	if !errors.As(err, &gerr) {
		t.Fatalf("want GrammarError for push+set, got %v", err)
	}
}

func TestMissingMandatoryKeys(t *testing.T) {
	if _, err := syntax.LoadDefinition("name: X\ncontexts: {main: []}", true); err == nil {
		t.Errorf("missing scope should fail")
	}
	if _, err := syntax.LoadDefinition("name: X\nscope: source.x", true); err == nil {
		t.Errorf("missing contexts should fail")
	}
	if _, err := syntax.LoadDefinition("name: X\nscope: source.x\ncontexts: {other: []}", true); err == nil {
		t.Errorf("missing main should fail")
	}
}

func TestVariableRecursionCapped(t *testing.T) {
	_, err := syntax.LoadDefinition(`
name: X
scope: source.x
variables:
  a: '{{b}}'
  b: '{{a}}'
contexts:
  main:
    - match: '{{a}}'
`, true)
	if err == nil {
		t.Fatalf("cyclic variables should fail to load")
	}
}

func TestEmbedLowering(t *testing.T) {
	def := loadDef(t, `
name: X
scope: source.x
contexts:
  main:
    - match: '<script>'
      embed: scope:source.js
      embed_scope: source.js.embedded.x
      escape: '</script>'
      escape_captures:
        0: punctuation.definition.tag.x
`)
	m := def.Contexts["main"].Patterns[0].Match
	if m.Operation.Kind != syntax.OpEmbed || len(m.Operation.Refs) != 1 {
		t.Fatalf("operation = %+v", m.Operation)
	}
	ref := m.Operation.Refs[0]
	if ref.Kind != syntax.RefInline {
		t.Fatalf("embed target should be an inline wrapper, got %+v", ref)
	}
	wrapper := def.Contexts[ref.Name]
	if wrapper == nil {
		t.Fatalf("wrapper context %q not hoisted", ref.Name)
	}
	if wrapper.MetaIncludePrototype {
		t.Errorf("wrapper must not include the embedder's prototype")
	}
	if len(wrapper.MetaContentScope) != 1 || wrapper.MetaContentScope[0] != scope.MustNew("source.js.embedded.x") {
		t.Errorf("embed_scope lost: %v", wrapper.MetaContentScope)
	}
	if len(wrapper.Patterns) != 2 {
		t.Fatalf("wrapper should have escape rule + include, got %d patterns", len(wrapper.Patterns))
	}
	esc := wrapper.Patterns[0].Match
	if esc == nil || esc.Operation.Kind != syntax.OpPop || esc.Operation.Count != 1 {
		t.Errorf("first wrapper pattern should pop on escape: %+v", esc)
	}
	if len(esc.Captures) != 1 {
		t.Errorf("escape captures lost")
	}
	inc := wrapper.Patterns[1].Include
	if inc == nil || inc.Kind != syntax.RefByScope || !inc.WithEscape {
		t.Errorf("embed include = %+v", inc)
	}
}

func TestEmbedRequiresEscape(t *testing.T) {
	_, err := syntax.LoadDefinition(`
name: X
scope: source.x
contexts:
  main:
    - match: a
      embed: other
  other:
    - match: b
`, true)
	if err == nil {
		t.Fatalf("embed without escape should fail")
	}
}

func TestNoNewlinesRewriting(t *testing.T) {
	def, err := syntax.LoadDefinition(`
name: X
scope: source.x
contexts:
  main:
    - match: 'foo\n'
    - match: 'bar\n?'
`, false)
	if err != nil {
		t.Fatal(err)
	}
	pats := def.Contexts["main"].Patterns
	if got := pats[0].Match.Regex.Source(); got != `foo\z` {
		t.Errorf("\\n rewrite got %q", got)
	}
	if got := pats[1].Match.Regex.Source(); got != "bar" {
		t.Errorf("\\n? rewrite got %q", got)
	}
}

func TestPopRuleMarksBackrefs(t *testing.T) {
	def := loadDef(t, `
name: X
scope: source.x
contexts:
  main:
    - match: '(a)'
      push: sub
  sub:
    - match: '\1'
      pop: true
`)
	sub := def.Contexts["sub"]
	if !sub.UsesBackrefs {
		t.Errorf("context with backref pop rule should use backrefs")
	}
	if !sub.Patterns[0].Match.HasBackrefs {
		t.Errorf("pop rule with \\1 should be marked")
	}
	// non-pop rules are not cross-context backrefs
	if def.Contexts["main"].UsesBackrefs {
		t.Errorf("main should not use backrefs")
	}
}
