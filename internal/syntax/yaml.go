package syntax

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"glint/internal/scope"
)

// maxVariableDepth caps {{variable}} expansion so definition cycles fail
// instead of recursing forever.
const maxVariableDepth = 32

// LoadDefinition parses a `.sublime-syntax` document. linesIncludeNewline
// says whether the lines later fed to the parser keep their trailing
// newline; when they do not, newline-dependent regex constructs are
// rewritten the way the input text will actually look.
func LoadDefinition(source string, linesIncludeNewline bool) (*Definition, error) {
	return loadDefinition(source, linesIncludeNewline, "Unnamed")
}

func loadDefinition(source string, linesIncludeNewline bool, fallbackName string) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("syntax: invalid YAML: %w", err)
	}
	root := deref(&doc)
	if root != nil && root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, &GrammarError{Msg: "empty syntax file"}
		}
		root = deref(root.Content[0])
	}
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, &GrammarError{Msg: "syntax file is not a mapping"}
	}

	ld := &loader{
		newlines: linesIncludeNewline,
		def: &Definition{
			Name:      fallbackName,
			Variables: map[string]string{},
			Contexts:  map[string]*Context{},
		},
	}
	if err := ld.parseTopLevel(root); err != nil {
		return nil, err
	}
	return ld.def, nil
}

type loader struct {
	newlines    bool
	def         *Definition
	anonCounter int
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func mapPairs(n *yaml.Node, f func(key string, value *yaml.Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		var key string
		if err := deref(n.Content[i]).Decode(&key); err != nil {
			return &GrammarError{Msg: "non-string mapping key"}
		}
		if err := f(key, deref(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

func (ld *loader) parseTopLevel(root *yaml.Node) error {
	var contextsNode *yaml.Node
	sawScope := false

	err := mapPairs(root, func(key string, v *yaml.Node) error {
		switch key {
		case "name":
			return v.Decode(&ld.def.Name)
		case "file_extensions":
			return v.Decode(&ld.def.FileExtensions)
		case "hidden_file_extensions":
			return v.Decode(&ld.def.HiddenFileExtensions)
		case "first_line_match":
			return v.Decode(&ld.def.FirstLineMatch)
		case "hidden":
			return v.Decode(&ld.def.Hidden)
		case "scope":
			var s string
			if err := v.Decode(&s); err != nil {
				return err
			}
			sc, err := scope.New(s)
			if err != nil {
				return err
			}
			ld.def.Scope = sc
			sawScope = true
			return nil
		case "variables":
			return mapPairs(v, func(name string, val *yaml.Node) error {
				var s string
				if err := val.Decode(&s); err != nil {
					return err
				}
				ld.def.Variables[name] = s
				return nil
			})
		case "contexts":
			contextsNode = v
			return nil
		default:
			return &GrammarError{Syntax: ld.def.Name, Msg: fmt.Sprintf("unknown key %q", key)}
		}
	})
	if err != nil {
		return err
	}
	if !sawScope {
		return &GrammarError{Syntax: ld.def.Name, Msg: "missing mandatory key \"scope\""}
	}
	if contextsNode == nil || contextsNode.Kind != yaml.MappingNode {
		return &GrammarError{Syntax: ld.def.Name, Msg: "missing mandatory key \"contexts\""}
	}

	err = mapPairs(contextsNode, func(name string, v *yaml.Node) error {
		ctx, err := ld.parseContext(v, name, name == "prototype")
		if err != nil {
			return err
		}
		ld.def.Contexts[name] = ctx
		return nil
	})
	if err != nil {
		return err
	}
	if _, ok := ld.def.Contexts[mainContextName]; !ok {
		return &GrammarError{Syntax: ld.def.Name, Msg: "missing \"main\" context"}
	}

	ld.addInitialContexts()
	return nil
}

// parseContext parses a context body: a sequence of rule maps, where
// meta_* entries configure the context itself.
func (ld *loader) parseContext(seq *yaml.Node, name string, isPrototype bool) (*Context, error) {
	if seq.Kind != yaml.SequenceNode {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: name, Msg: "context body is not a list"}
	}
	ctx := NewContext(!isPrototype)

	for _, item := range seq.Content {
		m := deref(item)
		if m.Kind != yaml.MappingNode {
			return nil, &GrammarError{Syntax: ld.def.Name, Context: name, Msg: "context entry is not a mapping"}
		}
		special := false
		var include *yaml.Node
		err := mapPairs(m, func(key string, v *yaml.Node) error {
			switch key {
			case "meta_scope":
				special = true
				scopes, err := ld.parseScopes(v, name)
				ctx.MetaScope = scopes
				return err
			case "meta_content_scope":
				special = true
				scopes, err := ld.parseScopes(v, name)
				ctx.MetaContentScope = scopes
				return err
			case "meta_include_prototype":
				special = true
				return v.Decode(&ctx.MetaIncludePrototype)
			case "clear_scopes":
				special = true
				amount, err := parseClearAmount(v)
				ctx.ClearScopes = amount
				return err
			case "include":
				include = v
				return nil
			}
			// remaining keys belong to a match rule, validated there
			return nil
		})
		if err != nil {
			return nil, err
		}
		switch {
		case special:
			// meta entries configure the context, nothing else allowed
		case include != nil:
			ref, err := ld.parseReference(include, name, false)
			if err != nil {
				return nil, err
			}
			ctx.Patterns = append(ctx.Patterns, Pattern{Include: ref})
		default:
			pat, err := ld.parseMatchPattern(m, name)
			if err != nil {
				return nil, err
			}
			if pat.HasBackrefs {
				ctx.UsesBackrefs = true
			}
			ctx.Patterns = append(ctx.Patterns, Pattern{Match: pat})
		}
	}
	return ctx, nil
}

func parseClearAmount(v *yaml.Node) (*scope.ClearAmount, error) {
	var all bool
	if err := v.Decode(&all); err == nil {
		if all {
			return &scope.ClearAmount{All: true}, nil
		}
		return nil, nil
	}
	var n int
	if err := v.Decode(&n); err != nil {
		return nil, &GrammarError{Msg: "clear_scopes must be true or an integer"}
	}
	return &scope.ClearAmount{TopN: n}, nil
}

func (ld *loader) parseScopes(v *yaml.Node, ctxName string) ([]scope.Scope, error) {
	var text string
	if err := v.Decode(&text); err != nil {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "scope value is not a string"}
	}
	var out []scope.Scope
	for _, name := range strings.Fields(text) {
		sc, err := scope.New(name)
		if err != nil {
			return nil, fmt.Errorf("syntax: %s: context %q: scope %q: %w", ld.def.Name, ctxName, name, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (ld *loader) parseMatchPattern(m *yaml.Node, ctxName string) (*MatchPattern, error) {
	var (
		rawRegex       string
		sawMatch       bool
		scopes         []scope.Scope
		captures       []CaptureMapping
		opKeys         []string
		pushNode       *yaml.Node
		setNode        *yaml.Node
		popNode        *yaml.Node
		embedNode      *yaml.Node
		escapeNode     *yaml.Node
		embedScope     []scope.Scope
		escapeCaptures []CaptureMapping
		protoNode      *yaml.Node
	)

	err := mapPairs(m, func(key string, v *yaml.Node) error {
		switch key {
		case "match":
			sawMatch = true
			return v.Decode(&rawRegex)
		case "scope":
			s, err := ld.parseScopes(v, ctxName)
			scopes = s
			return err
		case "captures":
			c, err := ld.parseCaptures(v, ctxName)
			captures = c
			return err
		case "push":
			opKeys = append(opKeys, key)
			pushNode = v
		case "set":
			opKeys = append(opKeys, key)
			setNode = v
		case "pop":
			opKeys = append(opKeys, key)
			popNode = v
		case "embed":
			opKeys = append(opKeys, key)
			embedNode = v
		case "escape":
			escapeNode = v
		case "embed_scope":
			s, err := ld.parseScopes(v, ctxName)
			embedScope = s
			return err
		case "escape_captures":
			c, err := ld.parseCaptures(v, ctxName)
			escapeCaptures = c
			return err
		case "with_prototype":
			protoNode = v
		default:
			return &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: fmt.Sprintf("unknown rule key %q", key)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sawMatch {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "rule has no \"match\""}
	}
	if len(opKeys) > 1 {
		return nil, &GrammarError{
			Syntax:  ld.def.Name,
			Context: ctxName,
			Msg:     fmt.Sprintf("rule has both %q and %q", opKeys[0], opKeys[1]),
		}
	}
	if (escapeNode != nil || embedScope != nil || escapeCaptures != nil) && embedNode == nil {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "escape keys require \"embed\""}
	}

	regexStr, err := ld.mungeRegex(rawRegex)
	if err != nil {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: err.Error()}
	}

	pat := &MatchPattern{
		Regex: NewRegex(regexStr),
		Scope: scopes,
	}

	switch {
	case popNode != nil:
		count := 1
		var b bool
		if err := popNode.Decode(&b); err != nil {
			if err := popNode.Decode(&count); err != nil {
				return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "pop must be true or an integer"}
			}
		} else if !b {
			count = 0
		}
		pat.Operation = MatchOperation{Kind: OpPop, Count: count}
		// backreferences in a pop rule refer to the captures of the match
		// that pushed this context
		pat.HasBackrefs = hasBackrefDigit(regexStr)
	case pushNode != nil:
		refs, err := ld.parsePushArgs(pushNode, ctxName)
		if err != nil {
			return nil, err
		}
		pat.Operation = MatchOperation{Kind: OpPush, Refs: refs}
	case setNode != nil:
		refs, err := ld.parsePushArgs(setNode, ctxName)
		if err != nil {
			return nil, err
		}
		pat.Operation = MatchOperation{Kind: OpSet, Refs: refs}
	case embedNode != nil:
		if escapeNode == nil {
			return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "embed requires \"escape\""}
		}
		ref, err := ld.buildEmbedWrapper(embedNode, escapeNode, embedScope, escapeCaptures, ctxName)
		if err != nil {
			return nil, err
		}
		pat.Operation = MatchOperation{Kind: OpEmbed, Refs: []ContextReference{*ref}}
	default:
		pat.Operation = MatchOperation{Kind: OpNone}
	}

	pat.Captures = captures

	if protoNode != nil {
		// a with_prototype does not itself include the prototype
		ctx, err := ld.parseContext(protoNode, ctxName, true)
		if err != nil {
			return nil, err
		}
		name := ld.hoistAnonContext(ctxName, ctx)
		pat.WithPrototype = &ContextReference{Kind: RefInline, Name: name}
	}
	return pat, nil
}

// buildEmbedWrapper synthesizes the context an embed pushes: the escape
// pop-rule first, then an include of the embedded target. The linker
// completes the picture by hoisting the target's meta scopes.
func (ld *loader) buildEmbedWrapper(embedNode, escapeNode *yaml.Node, embedScope []scope.Scope, escapeCaptures []CaptureMapping, ctxName string) (*ContextReference, error) {
	target, err := ld.parseReference(embedNode, ctxName, true)
	if err != nil {
		return nil, err
	}
	var escapeRaw string
	if err := escapeNode.Decode(&escapeRaw); err != nil {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "escape is not a string"}
	}
	escapeStr, err := ld.mungeRegex(escapeRaw)
	if err != nil {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: err.Error()}
	}

	escapePat := &MatchPattern{
		Regex:       NewRegex(escapeStr),
		Captures:    escapeCaptures,
		Operation:   MatchOperation{Kind: OpPop, Count: 1},
		HasBackrefs: hasBackrefDigit(escapeStr),
	}
	wrapper := NewContext(false)
	wrapper.MetaContentScope = embedScope
	wrapper.UsesBackrefs = escapePat.HasBackrefs
	wrapper.Patterns = []Pattern{
		{Match: escapePat},
		{Include: target},
	}
	name := ld.hoistAnonContext(ctxName, wrapper)
	return &ContextReference{Kind: RefInline, Name: name}, nil
}

func (ld *loader) parseCaptures(v *yaml.Node, ctxName string) ([]CaptureMapping, error) {
	if v.Kind != yaml.MappingNode {
		return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "captures is not a mapping"}
	}
	var out []CaptureMapping
	for i := 0; i+1 < len(v.Content); i += 2 {
		var group int
		if err := deref(v.Content[i]).Decode(&group); err != nil {
			return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "capture keys must be integers"}
		}
		scopes, err := ld.parseScopes(deref(v.Content[i+1]), ctxName)
		if err != nil {
			return nil, err
		}
		out = append(out, CaptureMapping{Group: group, Scopes: scopes})
	}
	return out, nil
}

func (ld *loader) parsePushArgs(v *yaml.Node, ctxName string) ([]ContextReference, error) {
	// a sequence of scalars is a multi-context push; a sequence of
	// mappings is one anonymous context
	if v.Kind == yaml.SequenceNode && len(v.Content) > 0 && deref(v.Content[0]).Kind == yaml.ScalarNode {
		refs := make([]ContextReference, 0, len(v.Content))
		for _, item := range v.Content {
			ref, err := ld.parseReference(deref(item), ctxName, false)
			if err != nil {
				return nil, err
			}
			refs = append(refs, *ref)
		}
		return refs, nil
	}
	ref, err := ld.parseReference(v, ctxName, false)
	if err != nil {
		return nil, err
	}
	return []ContextReference{*ref}, nil
}

func (ld *loader) parseReference(v *yaml.Node, ctxName string, withEscape bool) (*ContextReference, error) {
	if v.Kind == yaml.ScalarNode {
		var s string
		if err := v.Decode(&s); err != nil {
			return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "bad context reference"}
		}
		base, subContext, _ := strings.Cut(s, "#")
		switch {
		case strings.HasPrefix(base, "scope:"):
			sc, err := scope.New(strings.TrimPrefix(base, "scope:"))
			if err != nil {
				return nil, err
			}
			return &ContextReference{Kind: RefByScope, Scope: sc, SubContext: subContext, WithEscape: withEscape}, nil
		case strings.HasSuffix(base, ".sublime-syntax"):
			stem := strings.TrimSuffix(base, ".sublime-syntax")
			if i := strings.LastIndexAny(stem, "/\\"); i >= 0 {
				stem = stem[i+1:]
			}
			if stem == "" {
				return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "bad file reference " + s}
			}
			return &ContextReference{Kind: RefFile, Name: stem, SubContext: subContext, WithEscape: withEscape}, nil
		default:
			return &ContextReference{Kind: RefNamed, Name: base, WithEscape: withEscape}, nil
		}
	}
	if v.Kind == yaml.SequenceNode {
		// anonymous context; it participates in prototype inclusion
		ctx, err := ld.parseContext(v, ctxName, false)
		if err != nil {
			return nil, err
		}
		name := ld.hoistAnonContext(ctxName, ctx)
		return &ContextReference{Kind: RefInline, Name: name, WithEscape: withEscape}, nil
	}
	return nil, &GrammarError{Syntax: ld.def.Name, Context: ctxName, Msg: "bad context reference"}
}

// hoistAnonContext stores an anonymous context in the definition's map
// under a generated name so the linker can treat it like any other.
func (ld *loader) hoistAnonContext(parent string, ctx *Context) string {
	name := fmt.Sprintf("#anon_%s_%d", parent, ld.anonCounter)
	ld.anonCounter++
	ld.def.Contexts[name] = ctx
	return name
}

func hasBackrefDigit(regexStr string) bool {
	last := false
	for _, c := range regexStr {
		if last && c >= '0' && c <= '9' {
			return true
		}
		last = c == '\\' && !last
	}
	return false
}

// mungeRegex expands {{variables}} and rewrites constructs the engine or
// the newline mode cannot take verbatim.
func (ld *loader) mungeRegex(raw string) (string, error) {
	expanded, err := ld.resolveVariables(raw, 0)
	if err != nil {
		return "", err
	}
	// hex-digit classes are spelled differently in this engine
	expanded = strings.ReplaceAll(expanded, `\h`, `[0-9a-fA-F]`)
	expanded = strings.ReplaceAll(expanded, `\H`, `[^0-9a-fA-F]`)
	if !ld.newlines {
		// lines arrive without their newline, so patterns anchored on it
		// are rewritten to their end-of-input equivalents
		expanded = strings.ReplaceAll(expanded, `\n?`, "")
		expanded = strings.ReplaceAll(expanded, `(?:\n)?`, "")
		expanded = strings.ReplaceAll(expanded, `(?<!\n)`, "")
		expanded = strings.ReplaceAll(expanded, `(?<=\n)`, "")
		expanded = strings.ReplaceAll(expanded, `\n`, `\z`)
	}
	return expanded, nil
}

func (ld *loader) resolveVariables(raw string, depth int) (string, error) {
	if depth > maxVariableDepth {
		return "", fmt.Errorf("variable expansion exceeds depth %d", maxVariableDepth)
	}
	var out strings.Builder
	rest := raw
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		j := strings.Index(rest[i:], "}}")
		if j < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		name := rest[i+2 : i+j]
		if !isVariableName(name) {
			out.WriteString(rest[:i+2])
			rest = rest[i+2:]
			continue
		}
		out.WriteString(rest[:i])
		val, err := ld.resolveVariables(ld.def.Variables[name], depth+1)
		if err != nil {
			return "", err
		}
		out.WriteString(val)
		rest = rest[i+j+2:]
	}
}

func isVariableName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		ok := c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			return false
		}
	}
	return true
}

// addInitialContexts reproduces the reference's top-level trick: the real
// entry point is a hidden __start context that pushes __main, which
// includes main. When main pops, __start immediately pushes it back, and
// the file-level scope stays put when main is replaced with `set`.
func (ld *loader) addInitialContexts() {
	main := ld.def.Contexts[mainContextName]

	wrapped := NewContext(true)
	wrapped.MetaIncludePrototype = main.MetaIncludePrototype
	wrapped.MetaScope = main.MetaScope
	wrapped.MetaContentScope = main.MetaContentScope
	wrapped.Patterns = []Pattern{{Include: &ContextReference{Kind: RefNamed, Name: mainContextName}}}
	ld.def.Contexts["__main"] = wrapped

	start := NewContext(true)
	start.MetaContentScope = []scope.Scope{ld.def.Scope}
	start.Patterns = []Pattern{{Match: &MatchPattern{
		Regex:     NewRegex(""),
		Operation: MatchOperation{Kind: OpPush, Refs: []ContextReference{{Kind: RefNamed, Name: "__main"}}},
	}}}
	ld.def.Contexts[startContextName] = start

	// pushes from other syntaxes into main should add the file scope
	main.MetaContentScope = append([]scope.Scope{ld.def.Scope}, main.MetaContentScope...)
}
