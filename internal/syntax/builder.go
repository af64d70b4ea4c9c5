package syntax

import (
	"fmt"
	"sort"
)

const (
	startContextName = "__start"
	mainContextName  = "main"
	plainTextName    = "Plain Text"
)

// GrammarError reports a malformed or unresolvable grammar.
type GrammarError struct {
	Syntax  string
	Context string
	Msg     string
}

func (e *GrammarError) Error() string {
	switch {
	case e.Syntax != "" && e.Context != "":
		return fmt.Sprintf("syntax: %s: context %q: %s", e.Syntax, e.Context, e.Msg)
	case e.Syntax != "":
		return fmt.Sprintf("syntax: %s: %s", e.Syntax, e.Msg)
	}
	return "syntax: " + e.Msg
}

// Builder accumulates grammar definitions and links them into a Set.
// Linking resolves every symbolic context reference to a ContextID once,
// so the parser never does name lookups.
type Builder struct {
	// Strict makes unresolved references a build error instead of leaving
	// them to fall back (or fail) at parse time.
	Strict bool

	syntaxes     []*Definition
	pathSyntaxes []pathEntry
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a grammar definition to the set under construction.
func (b *Builder) Add(def *Definition) {
	b.syntaxes = append(b.syntaxes, def)
}

// AddWithPath appends a definition and remembers its originating path
// for FindSyntaxByPath.
func (b *Builder) AddWithPath(def *Definition, path string) {
	b.pathSyntaxes = append(b.pathSyntaxes, pathEntry{Path: path, Index: len(b.syntaxes)})
	b.syntaxes = append(b.syntaxes, def)
}

// Definitions lists what has been added so far.
func (b *Builder) Definitions() []*Definition { return b.syntaxes }

// AddPlainTextSyntax adds the fallback grammar that matches nothing.
func (b *Builder) AddPlainTextSyntax() error {
	def, err := LoadDefinition("name: Plain Text\nfile_extensions: [txt]\nscope: text.plain\ncontexts: {main: []}", false)
	if err != nil {
		return err
	}
	b.Add(def)
	return nil
}

// Build links every added definition into an immutable Set.
func (b *Builder) Build() (*Set, error) {
	set := &Set{
		syntaxes:     make([]Syntax, 0, len(b.syntaxes)),
		pathSyntaxes: b.pathSyntaxes,
	}

	// Pass 1: lay contexts out in the arena in sorted name order so ids
	// are deterministic for serialization.
	allIDs := make([]map[string]ContextID, len(b.syntaxes))
	for syntaxIndex, def := range b.syntaxes {
		names := make([]string, 0, len(def.Contexts))
		for name := range def.Contexts {
			names = append(names, name)
		}
		sort.Strings(names)

		ids := make(map[string]ContextID, len(names))
		contexts := make([]Context, 0, len(names))
		for contextIndex, name := range names {
			ids[name] = ContextID{Syntax: syntaxIndex, Context: contextIndex}
			contexts = append(contexts, *def.Contexts[name])
		}
		allIDs[syntaxIndex] = ids

		set.syntaxes = append(set.syntaxes, Syntax{
			Name:                 def.Name,
			FileExtensions:       def.FileExtensions,
			HiddenFileExtensions: def.HiddenFileExtensions,
			Scope:                def.Scope,
			FirstLineMatch:       def.FirstLineMatch,
			Hidden:               def.Hidden,
			Variables:            def.Variables,
			ContextIDs:           ids,
			Contexts:             contexts,
		})
	}

	// Pass 2: prototype wiring and reference resolution.
	for syntaxIndex := range set.syntaxes {
		syn := &set.syntaxes[syntaxIndex]

		noPrototype := map[ContextID]bool{}
		protoID, hasProto := allIDs[syntaxIndex]["prototype"]
		if hasProto {
			// Anything reachable from the prototype must not itself
			// include the prototype, or the pattern walk recurses.
			b.markNoPrototype(set, protoID, allIDs[syntaxIndex], noPrototype)
		}

		for _, id := range allIDs[syntaxIndex] {
			ctx := &syn.Contexts[id.Context]
			if hasProto && ctx.MetaIncludePrototype && !noPrototype[id] {
				p := protoID
				ctx.Prototype = &p
			}
			b.linkContext(set, ctx, syntaxIndex, allIDs)
		}
	}

	// Pass 3: embeds become ordinary pushes. The wrapper context absorbs
	// the embedded context's meta scopes and prototype, so the pushed
	// frame looks like the embedded context with the escape rule on top.
	for s := range set.syntaxes {
		for c := range set.syntaxes[s].Contexts {
			ctx := &set.syntaxes[s].Contexts[c]
			for p := range ctx.Patterns {
				m := ctx.Patterns[p].Match
				if m == nil || m.Operation.Kind != OpEmbed {
					continue
				}
				if len(m.Operation.Refs) != 1 || m.Operation.Refs[0].Kind != RefDirect {
					continue
				}
				wrapper, err := set.Context(m.Operation.Refs[0].ID)
				if err != nil {
					continue
				}
				b.hoistEmbeddedMetas(set, wrapper)
			}
		}
	}

	// Pass 4: contexts including a backref-using context transitively use
	// backrefs themselves; iterate to a fixpoint.
	for changed := true; changed; {
		changed = false
		for s := range set.syntaxes {
			for c := range set.syntaxes[s].Contexts {
				ctx := &set.syntaxes[s].Contexts[c]
				if ctx.UsesBackrefs {
					continue
				}
				for p := range ctx.Patterns {
					inc := ctx.Patterns[p].Include
					if inc == nil || inc.Kind != RefDirect {
						continue
					}
					if inner, err := set.Context(inc.ID); err == nil && inner.UsesBackrefs {
						ctx.UsesBackrefs = true
						changed = true
						break
					}
				}
			}
		}
	}

	if b.Strict {
		if unlinked := set.FindUnlinkedContexts(); len(unlinked) > 0 {
			return nil, &GrammarError{Msg: unlinked[0]}
		}
	}
	return set, nil
}

// hoistEmbeddedMetas copies the embedded target's meta scopes below the
// wrapper's embed_scope and inherits its prototype, since including a
// context flattens its patterns but not its frame-level metadata.
func (b *Builder) hoistEmbeddedMetas(set *Set, wrapper *Context) {
	for q := range wrapper.Patterns {
		inc := wrapper.Patterns[q].Include
		if inc == nil || inc.Kind != RefDirect {
			continue
		}
		embedded, err := set.Context(inc.ID)
		if err != nil {
			continue
		}
		metas := wrapper.MetaContentScope
		metas = append(metas, embedded.MetaScope...)
		metas = append(metas, embedded.MetaContentScope...)
		wrapper.MetaContentScope = metas
		if wrapper.Prototype == nil {
			wrapper.Prototype = embedded.Prototype
		}
		if embedded.UsesBackrefs {
			wrapper.UsesBackrefs = true
		}
		return
	}
}

// markNoPrototype walks everything reachable from id and records it.
func (b *Builder) markNoPrototype(set *Set, id ContextID, ids map[string]ContextID, marked map[ContextID]bool) {
	if marked[id] {
		return
	}
	marked[id] = true

	ctx, err := set.Context(id)
	if err != nil {
		return
	}
	followRef := func(ref *ContextReference) {
		switch ref.Kind {
		case RefNamed, RefInline:
			if next, ok := ids[ref.Name]; ok {
				b.markNoPrototype(set, next, ids, marked)
			}
		case RefDirect:
			b.markNoPrototype(set, ref.ID, ids, marked)
		}
	}
	for p := range ctx.Patterns {
		pat := &ctx.Patterns[p]
		if pat.Include != nil {
			followRef(pat.Include)
		}
		if pat.Match != nil {
			for r := range pat.Match.Operation.Refs {
				followRef(&pat.Match.Operation.Refs[r])
			}
		}
	}
}

func (b *Builder) linkContext(set *Set, ctx *Context, syntaxIndex int, allIDs []map[string]ContextID) {
	for p := range ctx.Patterns {
		pat := &ctx.Patterns[p]
		if pat.Include != nil {
			b.linkRef(set, pat.Include, syntaxIndex, allIDs)
		}
		if pat.Match != nil {
			for r := range pat.Match.Operation.Refs {
				b.linkRef(set, &pat.Match.Operation.Refs[r], syntaxIndex, allIDs)
			}
			if pat.Match.WithPrototype != nil {
				b.linkRef(set, pat.Match.WithPrototype, syntaxIndex, allIDs)
			}
		}
	}
}

func (b *Builder) linkRef(set *Set, ref *ContextReference, syntaxIndex int, allIDs []map[string]ContextID) {
	var id *ContextID
	switch ref.Kind {
	case RefNamed, RefInline:
		name := ref.Name
		// legacy alias still present in a few published grammars
		if name == "$top_level_main" {
			name = mainContextName
		}
		if found, ok := allIDs[syntaxIndex][name]; ok {
			id = &found
		}
	case RefByScope:
		id = b.findID(set, allIDs, ref.SubContext, func(syn *Syntax) bool {
			return syn.Scope == ref.Scope
		})
		if id == nil && ref.WithEscape {
			id = b.plainTextID(set, allIDs)
		}
	case RefFile:
		id = b.findID(set, allIDs, ref.SubContext, func(syn *Syntax) bool {
			return syn.Name == ref.Name
		})
		if id == nil && ref.WithEscape {
			id = b.plainTextID(set, allIDs)
		}
	case RefDirect:
		return
	}
	if id != nil {
		*ref = Direct(*id)
	}
}

// findID locates a context by sub-context name in the last syntax
// matching pred.
func (b *Builder) findID(set *Set, allIDs []map[string]ContextID, subContext string, pred func(*Syntax) bool) *ContextID {
	name := subContext
	if name == "" {
		name = mainContextName
	}
	for i := len(set.syntaxes) - 1; i >= 0; i-- {
		if pred(&set.syntaxes[i]) {
			if id, ok := allIDs[i][name]; ok {
				return &id
			}
			return nil
		}
	}
	return nil
}

// plainTextID resolves to Plain Text's main context; embeds with an
// escape always have a way out, so a missing embedded syntax degrades to
// plain text the way Sublime behaves.
func (b *Builder) plainTextID(set *Set, allIDs []map[string]ContextID) *ContextID {
	return b.findID(set, allIDs, "", func(syn *Syntax) bool {
		return syn.Name == plainTextName
	})
}
