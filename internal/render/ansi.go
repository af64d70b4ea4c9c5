// Package render turns styled spans into output formats: 24-bit ANSI for
// terminals and HTML for the web.
package render

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"glint/internal/highlight"
	"glint/internal/theme"
)

// blendOver composites a foreground color with alpha over an opaque
// background.
func blendOver(fg, bg theme.Color) theme.Color {
	if fg.A == 0xFF {
		return fg
	}
	t := float64(fg.A) / 255
	f := colorful.Color{R: float64(fg.R) / 255, G: float64(fg.G) / 255, B: float64(fg.B) / 255}
	b := colorful.Color{R: float64(bg.R) / 255, G: float64(bg.G) / 255, B: float64(bg.B) / 255}
	mixed := b.BlendRgb(f, t)
	r, g, bl := mixed.RGB255()
	return theme.Color{R: r, G: g, B: bl, A: 0xFF}
}

// ANSI formats spans with 24-bit terminal escape codes. When background
// is set, each span also paints its background color. The caller usually
// wants Reset at the end of the output.
func ANSI(spans []highlight.Span, background bool) string {
	var sb strings.Builder
	for _, span := range spans {
		if background {
			fmt.Fprintf(&sb, "\x1b[48;2;%d;%d;%dm",
				span.Style.Background.R, span.Style.Background.G, span.Style.Background.B)
		}
		fg := blendOver(span.Style.Foreground, span.Style.Background)
		fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm%s", fg.R, fg.G, fg.B, span.Text)
	}
	return sb.String()
}

// Reset is the escape sequence clearing colors at the end of output.
const Reset = "\x1b[0m"
