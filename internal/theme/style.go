package theme

import (
	"fmt"
	"strings"
)

// Color is an RGBA color straight from a theme file.
type Color struct {
	R, G, B, A uint8
}

// Black is #000000, the fallback foreground.
var Black = Color{0x00, 0x00, 0x00, 0xFF}

// White is #FFFFFF, the fallback background.
var White = Color{0xFF, 0xFF, 0xFF, 0xFF}

// Hex renders the color as #RRGGBB, or #RRGGBBAA when not fully opaque.
func (c Color) Hex() string {
	if c.A != 0xFF {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// FontStyle is a bitmask of font styling flags.
type FontStyle uint8

const (
	// Bold font style.
	Bold FontStyle = 1 << iota
	// Underline font style.
	Underline
	// Italic font style.
	Italic
)

// ParseFontStyle parses a tmTheme fontStyle value: whitespace separated
// words out of bold/underline/italic/normal/regular.
func ParseFontStyle(s string) (FontStyle, error) {
	var fs FontStyle
	for _, word := range strings.Fields(s) {
		switch word {
		case "bold":
			fs |= Bold
		case "underline":
			fs |= Underline
		case "italic":
			fs |= Italic
		case "normal", "regular":
		default:
			return 0, fmt.Errorf("theme: unknown font style %q", word)
		}
	}
	return fs, nil
}

func (fs FontStyle) String() string {
	var words []string
	if fs&Bold != 0 {
		words = append(words, "bold")
	}
	if fs&Underline != 0 {
		words = append(words, "underline")
	}
	if fs&Italic != 0 {
		words = append(words, "italic")
	}
	if len(words) == 0 {
		return "regular"
	}
	return strings.Join(words, " ")
}

// Style is a fully resolved text style.
type Style struct {
	Foreground Color
	Background Color
	FontStyle  FontStyle
}

// StyleModifier is a partial style; unset fields leave the base alone.
type StyleModifier struct {
	Foreground *Color
	Background *Color
	FontStyle  *FontStyle
}

// Apply overlays the modifier onto the style, yielding a new style.
func (s Style) Apply(m StyleModifier) Style {
	if m.Foreground != nil {
		s.Foreground = *m.Foreground
	}
	if m.Background != nil {
		s.Background = *m.Background
	}
	if m.FontStyle != nil {
		s.FontStyle = *m.FontStyle
	}
	return s
}

// Apply overlays another modifier; fields set in other win.
func (m StyleModifier) Apply(other StyleModifier) StyleModifier {
	if other.Foreground != nil {
		m.Foreground = other.Foreground
	}
	if other.Background != nil {
		m.Background = other.Background
	}
	if other.FontStyle != nil {
		m.FontStyle = other.FontStyle
	}
	return m
}

// IsZero reports whether no field is set.
func (m StyleModifier) IsZero() bool {
	return m.Foreground == nil && m.Background == nil && m.FontStyle == nil
}
