// Package theme models tmTheme color schemes: global editor settings
// plus an ordered list of scoped style rules.
package theme

import (
	"glint/internal/selector"
)

// Theme is a parsed color scheme.
type Theme struct {
	Name   string
	Author string
	// Settings holds the scope-less defaults from the first settings
	// entry plus the theme-level keys.
	Settings Settings
	// Items are the scoped rules in file order; order breaks scoring ties.
	Items []Item
}

// Item styles whatever its selectors match.
type Item struct {
	Selectors selector.Selectors
	Style     StyleModifier
}

// Settings are the editor-facing defaults of a theme.
type Settings struct {
	Foreground          *Color
	Background          *Color
	Caret               *Color
	LineHighlight       *Color
	Misspelling         *Color
	Accent              *Color
	BracketsForeground  *Color
	BracketsBackground  *Color
	TagsForeground      *Color
	Highlight           *Color
	FindHighlight       *Color
	FindHighlightFG     *Color
	Gutter              *Color
	GutterForeground    *Color
	Selection           *Color
	SelectionForeground *Color
	SelectionBorder     *Color
	InactiveSelection   *Color
	Guide               *Color
	ActiveGuide         *Color
	StackGuide          *Color
	Shadow              *Color
}

// Default returns the style used where no rule matches: the global
// foreground on the global background.
func (t *Theme) Default() Style {
	st := Style{Foreground: Black, Background: White}
	if t.Settings.Foreground != nil {
		st.Foreground = *t.Settings.Foreground
	}
	if t.Settings.Background != nil {
		st.Background = *t.Settings.Background
	}
	return st
}
