package highlight

import (
	"glint/internal/scope"
	"glint/internal/theme"
)

// State carries the scope stack and the matching style stack between
// lines. Styles are incremental: each entry is the effective style at
// that stack depth, so popping is free and pushing costs one theme match.
type State struct {
	// Path is the current scope stack; exposed for consumers that track
	// scopes alongside styles.
	Path *scope.Stack

	styles []theme.Style
	// memo caches theme resolution by stack hash for the life of the
	// state; stacks repeat constantly within a file.
	memo map[uint64]theme.StyleModifier
}

// NewState starts highlighting with an empty scope stack.
func NewState(h *Highlighter) *State {
	return NewStateWithStack(h, scope.NewStack())
}

// NewStateWithStack resumes from a cached scope stack, rebuilding the
// style stack from it.
func NewStateWithStack(h *Highlighter, initial *scope.Stack) *State {
	s := &State{
		Path:   initial,
		styles: make([]theme.Style, 0, initial.Len()+8),
		memo:   make(map[uint64]theme.StyleModifier, 128),
	}
	s.styles = append(s.styles, h.Default())
	scopes := initial.Scopes()
	for i := range scopes {
		top := s.styles[len(s.styles)-1]
		s.styles = append(s.styles, top.Apply(h.ModifierFor(scopes[:i+1])))
	}
	return s
}

// Clone returns an independent copy for caching line snapshots.
func (s *State) Clone() *State {
	return &State{
		Path:   s.Path.Clone(),
		styles: append([]theme.Style(nil), s.styles...),
		memo:   make(map[uint64]theme.StyleModifier, 128),
	}
}

// Style returns the effective style for the current stack top.
func (s *State) Style() theme.Style {
	return s.styles[len(s.styles)-1]
}

// ApplyOp advances the state by one parser operation.
func (s *State) ApplyOp(h *Highlighter, op scope.StackOp) error {
	return s.Path.ApplyWithHook(op, func(b scope.BasicOp, cur []scope.Scope) {
		if b.Push {
			top := s.styles[len(s.styles)-1]
			key := s.Path.Hash()
			mod, ok := s.memo[key]
			if !ok {
				mod = h.ModifierFor(cur)
				s.memo[key] = mod
			}
			s.styles = append(s.styles, top.Apply(mod))
			return
		}
		if len(s.styles) > 1 {
			s.styles = s.styles[:len(s.styles)-1]
		}
	})
}
