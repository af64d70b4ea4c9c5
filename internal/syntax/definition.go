package syntax

import (
	"regexp"
	"strings"

	"glint/internal/scope"
)

// Definition is a grammar as loaded from a `.sublime-syntax` file, before
// linking. Context references are still symbolic; a SyntaxSet builder
// resolves them to ContextIDs.
type Definition struct {
	Name                 string
	FileExtensions       []string
	HiddenFileExtensions []string
	Scope                scope.Scope
	FirstLineMatch       string
	Hidden               bool
	Variables            map[string]string
	Contexts             map[string]*Context
}

// ContextID addresses a Context inside its owning SyntaxSet. IDs are only
// valid for the set that produced them.
type ContextID struct {
	Syntax  int
	Context int
}

// Context is one node of the grammar state machine.
type Context struct {
	MetaScope        []scope.Scope
	MetaContentScope []scope.Scope
	// MetaIncludePrototype opts the context out of prototype inclusion
	// when false.
	MetaIncludePrototype bool
	ClearScopes          *scope.ClearAmount
	// Prototype is resolved by the linker for contexts that inherit one.
	Prototype    *ContextID
	UsesBackrefs bool

	Patterns []Pattern
}

// NewContext returns an empty context.
func NewContext(includePrototype bool) *Context {
	return &Context{MetaIncludePrototype: includePrototype}
}

// Pattern is either an include directive or a match rule.
type Pattern struct {
	Include *ContextReference
	Match   *MatchPattern
}

// MatchPattern is a single match rule: a regex, scopes for the matched
// text and captures, and a context-stack operation.
type MatchPattern struct {
	// HasBackrefs marks regexes referencing captures of the rule that
	// pushed the current context; they compile per captured input.
	HasBackrefs   bool
	Regex         *Regex
	Scope         []scope.Scope
	Captures      []CaptureMapping
	Operation     MatchOperation
	WithPrototype *ContextReference
}

// CaptureMapping assigns scopes to one regex capture group.
type CaptureMapping struct {
	Group  int
	Scopes []scope.Scope
}

// OpKind enumerates context-stack operations a rule can perform.
type OpKind uint8

const (
	// OpNone leaves the context stack alone.
	OpNone OpKind = iota
	// OpPush pushes the referenced contexts.
	OpPush
	// OpSet replaces the top frame with the referenced contexts.
	OpSet
	// OpPop pops Count frames.
	OpPop
	// OpEmbed pushes a synthesized wrapper context whose first rule is the
	// escape pop-match and whose body includes the embedded target. The
	// linker hoists the embedded context's meta scopes onto the wrapper,
	// which makes the op equivalent to a plain push afterwards.
	OpEmbed
)

// MatchOperation describes the context-stack effect of a rule.
type MatchOperation struct {
	Kind OpKind
	// Refs are the push/set targets, or the embed wrapper for OpEmbed.
	Refs []ContextReference
	// Count is the number of frames OpPop removes.
	Count int
}

// RefKind enumerates the ways a context can be referenced.
type RefKind uint8

const (
	// RefNamed references a context of the same syntax by name.
	RefNamed RefKind = iota
	// RefByScope references another syntax by its top-level scope.
	RefByScope
	// RefFile references another syntax by file name.
	RefFile
	// RefInline references an anonymous context hoisted into the syntax's
	// context map under a generated name.
	RefInline
	// RefDirect is a linked reference; the only kind the parser accepts.
	RefDirect
)

// ContextReference points at a context, symbolically before linking and
// directly after.
type ContextReference struct {
	Kind       RefKind
	Name       string      // RefNamed, RefFile, RefInline
	Scope      scope.Scope // RefByScope
	SubContext string      // RefByScope, RefFile; "" means main
	// WithEscape marks embed targets that always have a way out, enabling
	// the Plain Text fallback when the referenced syntax is missing.
	WithEscape bool
	ID         ContextID // RefDirect
}

// Direct returns a linked reference to id.
func Direct(id ContextID) ContextReference {
	return ContextReference{Kind: RefDirect, ID: id}
}

func (r *ContextReference) String() string {
	switch r.Kind {
	case RefNamed:
		return r.Name
	case RefInline:
		return r.Name + " (inline)"
	case RefByScope:
		s := "scope:" + r.Scope.String()
		if r.SubContext != "" {
			s += "#" + r.SubContext
		}
		return s
	case RefFile:
		s := r.Name + ".sublime-syntax"
		if r.SubContext != "" {
			s += "#" + r.SubContext
		}
		return s
	case RefDirect:
		return "(linked)"
	}
	return "(unknown)"
}

// substituteBackrefs rewrites numeric backreferences in a regex source
// through sub; sub returns the replacement for group n, or ok=false to
// drop the reference.
func substituteBackrefs(source string, sub func(n int) (string, bool)) string {
	var out strings.Builder
	out.Grow(len(source))

	lastWasEscape := false
	for _, c := range source {
		switch {
		case lastWasEscape && c >= '0' && c <= '9':
			if rep, ok := sub(int(c - '0')); ok {
				out.WriteString(rep)
			}
		case lastWasEscape:
			out.WriteByte('\\')
			out.WriteRune(c)
		case c != '\\':
			out.WriteRune(c)
		}
		lastWasEscape = c == '\\' && !lastWasEscape
	}
	return out.String()
}

// SubstituteBackrefs interpolates the captures of an ancestor match into
// the pattern's regex source, escaping the captured text.
func (p *MatchPattern) SubstituteBackrefs(captured *CapturedInput) string {
	return substituteBackrefs(p.Regex.Source(), func(n int) (string, bool) {
		start, end, ok := captured.Region.Pos(n)
		if !ok {
			return "", false
		}
		return quoteMeta(string(captured.Runes[start:end])), true
	})
}

// CapturedInput is the input and capture positions of the match that
// pushed a frame, kept for backreference interpolation.
type CapturedInput struct {
	Runes  []rune
	Region *Region
}

// quoteMeta escapes captured text before it re-enters a regex. The
// metacharacter set matches the engine's.
func quoteMeta(s string) string {
	return regexp.QuoteMeta(s)
}
