package syntax

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"glint/internal/scope"
)

// Set is a collection of linked grammars. All contexts live in the set's
// arena and are addressed by ContextID; a set is immutable after build
// and safe for concurrent readers.
type Set struct {
	syntaxes []Syntax
	// pathSyntaxes remembers the load path of each syntax for lookup by
	// original file path.
	pathSyntaxes []pathEntry

	firstLineOnce  sync.Once
	firstLineCache []firstLineEntry
}

type pathEntry struct {
	Path  string
	Index int
}

type firstLineEntry struct {
	regex  *Regex
	syntax int
}

// Syntax is a linked grammar inside a Set.
type Syntax struct {
	Name                 string
	FileExtensions       []string
	HiddenFileExtensions []string
	Scope                scope.Scope
	FirstLineMatch       string
	Hidden               bool
	Variables            map[string]string

	ContextIDs map[string]ContextID
	Contexts   []Context
}

// ErrMissingContext reports a ContextID that does not belong to the set.
var ErrMissingContext = errors.New("syntax: missing context")

// Context returns the context for id.
func (s *Set) Context(id ContextID) (*Context, error) {
	if id.Syntax < 0 || id.Syntax >= len(s.syntaxes) {
		return nil, fmt.Errorf("%w: %+v", ErrMissingContext, id)
	}
	syn := &s.syntaxes[id.Syntax]
	if id.Context < 0 || id.Context >= len(syn.Contexts) {
		return nil, fmt.Errorf("%w: %+v", ErrMissingContext, id)
	}
	return &syn.Contexts[id.Context], nil
}

// Syntaxes lists the grammars in the set.
func (s *Set) Syntaxes() []Syntax { return s.syntaxes }

// StartContext returns the id of the hidden start context of syn.
func (s *Set) StartContext(syn *Syntax) (ContextID, bool) {
	id, ok := syn.ContextIDs[startContextName]
	return id, ok
}

// FindSyntaxByScope finds a grammar by its top-level scope. Later
// additions shadow earlier ones.
func (s *Set) FindSyntaxByScope(sc scope.Scope) *Syntax {
	for i := len(s.syntaxes) - 1; i >= 0; i-- {
		if s.syntaxes[i].Scope == sc {
			return &s.syntaxes[i]
		}
	}
	return nil
}

// FindSyntaxByName finds a grammar by exact name.
func (s *Set) FindSyntaxByName(name string) *Syntax {
	for i := len(s.syntaxes) - 1; i >= 0; i-- {
		if s.syntaxes[i].Name == name {
			return &s.syntaxes[i]
		}
	}
	return nil
}

// FindSyntaxByExtension finds a grammar claiming the extension (or full
// file name), case-insensitively. Hidden extensions participate.
func (s *Set) FindSyntaxByExtension(ext string) *Syntax {
	match := func(list []string) bool {
		for _, e := range list {
			if strings.EqualFold(e, ext) {
				return true
			}
		}
		return false
	}
	for i := len(s.syntaxes) - 1; i >= 0; i-- {
		syn := &s.syntaxes[i]
		if match(syn.FileExtensions) || match(syn.HiddenFileExtensions) {
			return syn
		}
	}
	return nil
}

// FindSyntaxByToken looks up by extension first, then by
// case-insensitive name. Useful for fenced code block tags.
func (s *Set) FindSyntaxByToken(token string) *Syntax {
	if syn := s.FindSyntaxByExtension(token); syn != nil {
		return syn
	}
	for i := len(s.syntaxes) - 1; i >= 0; i-- {
		if strings.EqualFold(s.syntaxes[i].Name, token) {
			return &s.syntaxes[i]
		}
	}
	return nil
}

// FindSyntaxByFirstLine matches grammars' first_line_match regexes
// against the first line of a file.
func (s *Set) FindSyntaxByFirstLine(line string) *Syntax {
	s.firstLineOnce.Do(func() {
		for i := range s.syntaxes {
			if m := s.syntaxes[i].FirstLineMatch; m != "" {
				s.firstLineCache = append(s.firstLineCache, firstLineEntry{NewRegex(m), i})
			}
		}
	})
	for i := len(s.firstLineCache) - 1; i >= 0; i-- {
		e := s.firstLineCache[i]
		if ok, err := e.regex.IsMatch(line); err == nil && ok {
			return &s.syntaxes[e.syntax]
		}
	}
	return nil
}

// FindSyntaxByPath finds a grammar by the path it was loaded from; the
// argument may be a suffix of the original path starting at a path
// separator.
func (s *Set) FindSyntaxByPath(path string) *Syntax {
	suffix := "/" + path
	for i := len(s.pathSyntaxes) - 1; i >= 0; i-- {
		e := s.pathSyntaxes[i]
		if e.Path == path || strings.HasSuffix(e.Path, suffix) {
			return &s.syntaxes[e.Index]
		}
	}
	return nil
}

// FindSyntaxForFile picks a grammar for a file, by extension and file
// name first and by the file's first line when that fails. Returns nil
// without error when nothing matches.
func (s *Set) FindSyntaxForFile(path string) (*Syntax, error) {
	name := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if syn := s.FindSyntaxByExtension(name); syn != nil {
		return syn, nil
	}
	if syn := s.FindSyntaxByExtension(ext); syn != nil {
		return syn, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return s.FindSyntaxByFirstLine(sc.Text()), sc.Err()
	}
	return nil, sc.Err()
}

// PlainText returns the always-present fallback grammar. Sets built
// without one panic here; use Builder.AddPlainTextSyntax.
func (s *Set) PlainText() *Syntax {
	if syn := s.FindSyntaxByName(plainTextName); syn != nil {
		return syn
	}
	panic("syntax: set has no Plain Text grammar")
}

// Clone returns an independent set. Compiled regexes are shared; they
// are immutable once compiled.
func (s *Set) Clone() *Set {
	cp := &Set{
		syntaxes:     make([]Syntax, len(s.syntaxes)),
		pathSyntaxes: slices.Clone(s.pathSyntaxes),
	}
	for i := range s.syntaxes {
		src := &s.syntaxes[i]
		dst := &cp.syntaxes[i]
		*dst = *src
		dst.Contexts = slices.Clone(src.Contexts)
	}
	return cp
}

// FindUnlinkedContexts lists human-readable descriptions of references
// the linker could not resolve. Useful for grammar authors.
func (s *Set) FindUnlinkedContexts() []string {
	var out []string
	seen := map[string]bool{}
	add := (func(syn *Syntax, ref *ContextReference) {
		if ref.Kind == RefDirect {
			return
		}
		msg := fmt.Sprintf("syntax %q with scope %q has unresolved context reference %s",
			syn.Name, syn.Scope.String(), ref.String())
		if !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	})
	for i := range s.syntaxes {
		syn := &s.syntaxes[i]
		for c := range syn.Contexts {
			for p := range syn.Contexts[c].Patterns {
				pat := &syn.Contexts[c].Patterns[p]
				if pat.Include != nil {
					add(syn, pat.Include)
				}
				if pat.Match != nil {
					for r := range pat.Match.Operation.Refs {
						add(syn, &pat.Match.Operation.Refs[r])
					}
					if pat.Match.WithPrototype != nil {
						add(syn, pat.Match.WithPrototype)
					}
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// PatternIter walks the match patterns of a context in effective order,
// descending into include directives. Contexts must be linked.
type PatternIter struct {
	set        *Set
	ctxStack   []*Context
	indexStack []int
}

// Patterns returns an iterator over ctx's match patterns.
func (s *Set) Patterns(ctx *Context) PatternIter {
	return PatternIter{
		set:        s,
		ctxStack:   []*Context{ctx},
		indexStack: []int{0},
	}
}

// Next yields the owning context and pattern index of the next match
// rule; ok is false when the walk is done. Includes that would recurse
// into a context already on the include chain are skipped.
func (it *PatternIter) Next() (*Context, int, bool) {
	for len(it.ctxStack) > 0 {
		last := len(it.ctxStack) - 1
		ctx := it.ctxStack[last]
		index := it.indexStack[last]
		it.indexStack[last] = index + 1

		if index >= len(ctx.Patterns) {
			it.ctxStack = it.ctxStack[:last]
			it.indexStack = it.indexStack[:last]
			continue
		}
		pat := &ctx.Patterns[index]
		if pat.Match != nil {
			return ctx, index, true
		}
		if pat.Include == nil || pat.Include.Kind != RefDirect {
			continue
		}
		inner, err := it.set.Context(pat.Include.ID)
		if err != nil || it.onStack(inner) {
			continue
		}
		it.ctxStack = append(it.ctxStack, inner)
		it.indexStack = append(it.indexStack, 0)
	}
	return nil, 0, false
}

func (it *PatternIter) onStack(ctx *Context) bool {
	for _, c := range it.ctxStack {
		if c == ctx {
			return true
		}
	}
	return false
}

// MatchAt returns the match pattern at index inside ctx.
func (ctx *Context) MatchAt(index int) (*MatchPattern, error) {
	if index < 0 || index >= len(ctx.Patterns) || ctx.Patterns[index].Match == nil {
		return nil, fmt.Errorf("syntax: bad match index %d", index)
	}
	return ctx.Patterns[index].Match, nil
}

// Resolve returns the context a linked reference points to.
func (r *ContextReference) Resolve(s *Set) (*Context, error) {
	if r.Kind != RefDirect {
		return nil, fmt.Errorf("syntax: unresolved context reference %s", r.String())
	}
	return s.Context(r.ID)
}
