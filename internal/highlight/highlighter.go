// Package highlight turns parser scope operations into styled text spans
// by matching theme selectors against the live scope stack.
package highlight

import (
	"glint/internal/scope"
	"glint/internal/selector"
	"glint/internal/theme"
)

// Highlighter wraps a Theme prepared for matching. Preparation computes,
// per theme item, a bitmask over the leading atoms of its selectors: a
// stack none of whose scopes start with one of those atoms cannot match
// the item, so most items are rejected without scoring.
type Highlighter struct {
	theme *theme.Theme
	items []preparedItem
}

type preparedItem struct {
	mask atomMask
	// universal items (an empty selector path) match any stack
	universal bool
}

// atomMask is a fixed bloom filter over 16-bit atom numbers.
type atomMask [4]uint64

func (m *atomMask) add(atom uint16) {
	bit := uint(atom) % 256
	m[bit/64] |= 1 << (bit % 64)
}

func (m *atomMask) intersects(o *atomMask) bool {
	return m[0]&o[0] != 0 || m[1]&o[1] != 0 || m[2]&o[2] != 0 || m[3]&o[3] != 0
}

// New prepares a theme for highlighting.
func New(t *theme.Theme) *Highlighter {
	h := &Highlighter{theme: t, items: make([]preparedItem, len(t.Items))}
	for i := range t.Items {
		p := &h.items[i]
		for _, sel := range t.Items[i].Selectors.List {
			if len(sel.Path) == 0 {
				p.universal = true
				continue
			}
			p.mask.add(sel.Path[0].AtomAt(0))
		}
	}
	return h
}

// Theme returns the wrapped theme.
func (h *Highlighter) Theme() *theme.Theme { return h.theme }

// Default is the style text gets when no rule matches.
func (h *Highlighter) Default() theme.Style {
	return h.theme.Default()
}

// ModifierFor resolves the theme against a scope stack. Each style
// attribute is resolved independently: the highest-scoring item defining
// the attribute wins it, and ties go to the later rule.
func (h *Highlighter) ModifierFor(stack []scope.Scope) theme.StyleModifier {
	var stackMask atomMask
	for _, sc := range stack {
		stackMask.add(sc.AtomAt(0))
	}

	var out theme.StyleModifier
	var fgPower, bgPower, fsPower selector.MatchPower
	for i := range h.items {
		p := &h.items[i]
		if !p.universal && !p.mask.intersects(&stackMask) {
			continue
		}
		item := &h.theme.Items[i]
		power, ok := item.Selectors.Match(stack)
		if !ok {
			continue
		}
		if item.Style.Foreground != nil && (out.Foreground == nil || power.Compare(fgPower) >= 0) {
			out.Foreground = item.Style.Foreground
			fgPower = power
		}
		if item.Style.Background != nil && (out.Background == nil || power.Compare(bgPower) >= 0) {
			out.Background = item.Style.Background
			bgPower = power
		}
		if item.Style.FontStyle != nil && (out.FontStyle == nil || power.Compare(fsPower) >= 0) {
			out.FontStyle = item.Style.FontStyle
			fsPower = power
		}
	}
	return out
}

// StyleForStack fully resolves a style for a stack, applying rules
// bottom-up the way the incremental state does. Convenient but not
// cached; per-line work should go through State.
func (h *Highlighter) StyleForStack(stack []scope.Scope) theme.Style {
	st := h.Default()
	for i := range stack {
		st = st.Apply(h.ModifierFor(stack[:i+1]))
	}
	return st
}
