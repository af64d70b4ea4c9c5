package theme

import (
	"fmt"

	"github.com/mazznoer/csscolorparser"
	"howett.net/plist"

	"glint/internal/selector"
)

// ParseError reports a malformed theme file.
type ParseError struct {
	Theme string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Theme != "" {
		return fmt.Sprintf("theme: %s: %s", e.Theme, e.Msg)
	}
	return "theme: " + e.Msg
}

// Load parses a `.tmTheme` property list. Every entry of the root
// settings array needs a settings dict. Entries without a scope supply
// the global defaults, a later one overriding keys an earlier one set;
// entries with a scope become style items.
func Load(data []byte) (*Theme, error) {
	var root interface{}
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("theme: invalid plist: %w", err)
	}
	dict, ok := root.(map[string]interface{})
	if !ok {
		return nil, &ParseError{Msg: "root is not a dict"}
	}

	t := &Theme{}
	t.Name, _ = dict["name"].(string)
	t.Author, _ = dict["author"].(string)

	entries, ok := dict["settings"].([]interface{})
	if !ok {
		return nil, &ParseError{Theme: t.Name, Msg: "missing settings array"}
	}

	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &ParseError{Theme: t.Name, Msg: "settings entry is not a dict"}
		}
		scopeVal, scoped := entry["scope"]
		body, ok := entry["settings"].(map[string]interface{})
		if !ok {
			return nil, &ParseError{Theme: t.Name, Msg: "settings entry without settings dict"}
		}
		if !scoped {
			if err := t.parseGlobals(body); err != nil {
				return nil, err
			}
			continue
		}
		scopeStr, ok := scopeVal.(string)
		if !ok {
			return nil, &ParseError{Theme: t.Name, Msg: "scope is not a string"}
		}
		sels, err := selector.Parse(scopeStr)
		if err != nil {
			return nil, fmt.Errorf("theme: %s: scope %q: %w", t.Name, scopeStr, err)
		}
		style, err := parseStyleModifier(body, t.Name)
		if err != nil {
			return nil, err
		}
		t.Items = append(t.Items, Item{Selectors: sels, Style: style})
	}
	return t, nil
}

func (t *Theme) parseGlobals(body map[string]interface{}) error {
	targets := map[string]**Color{
		"foreground":                &t.Settings.Foreground,
		"background":                &t.Settings.Background,
		"caret":                     &t.Settings.Caret,
		"lineHighlight":             &t.Settings.LineHighlight,
		"misspelling":               &t.Settings.Misspelling,
		"accent":                    &t.Settings.Accent,
		"bracketsForeground":        &t.Settings.BracketsForeground,
		"bracketsBackground":        &t.Settings.BracketsBackground,
		"tagsForeground":            &t.Settings.TagsForeground,
		"highlight":                 &t.Settings.Highlight,
		"findHighlight":             &t.Settings.FindHighlight,
		"findHighlightForeground":   &t.Settings.FindHighlightFG,
		"gutter":                    &t.Settings.Gutter,
		"gutterForeground":          &t.Settings.GutterForeground,
		"selection":                 &t.Settings.Selection,
		"selectionForeground":       &t.Settings.SelectionForeground,
		"selectionBorder":           &t.Settings.SelectionBorder,
		"inactiveSelection":         &t.Settings.InactiveSelection,
		"guide":                     &t.Settings.Guide,
		"activeGuide":               &t.Settings.ActiveGuide,
		"stackGuide":                &t.Settings.StackGuide,
		"shadow":                    &t.Settings.Shadow,
	}
	for key, dst := range targets {
		raw, ok := body[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return &ParseError{Theme: t.Name, Msg: key + " is not a string"}
		}
		c, err := parseColor(s)
		if err != nil {
			return fmt.Errorf("theme: %s: %s: %w", t.Name, key, err)
		}
		*dst = &c
	}
	return nil
}

func parseStyleModifier(body map[string]interface{}, themeName string) (StyleModifier, error) {
	var m StyleModifier
	if raw, ok := body["foreground"]; ok {
		s, _ := raw.(string)
		c, err := parseColor(s)
		if err != nil {
			return m, fmt.Errorf("theme: %s: foreground: %w", themeName, err)
		}
		m.Foreground = &c
	}
	if raw, ok := body["background"]; ok {
		s, _ := raw.(string)
		c, err := parseColor(s)
		if err != nil {
			return m, fmt.Errorf("theme: %s: background: %w", themeName, err)
		}
		m.Background = &c
	}
	if raw, ok := body["fontStyle"]; ok {
		s, _ := raw.(string)
		fs, err := ParseFontStyle(s)
		if err != nil {
			return m, err
		}
		m.FontStyle = &fs
	}
	return m, nil
}

func parseColor(s string) (Color, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return Color{}, err
	}
	r, g, b, a := c.RGBA255()
	return Color{R: r, G: g, B: b, A: a}, nil
}
