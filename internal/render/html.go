package render

import (
	"fmt"
	"html"
	"strings"

	"glint/internal/highlight"
	"glint/internal/parse"
	"glint/internal/scope"
	"glint/internal/theme"
)

// HTML formats spans as inline-styled <span> elements. Text is escaped;
// font styles become the matching CSS properties.
func HTML(spans []highlight.Span) string {
	var sb strings.Builder
	for _, span := range spans {
		sb.WriteString(`<span style="`)
		writeStyleCSS(&sb, span.Style)
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(span.Text))
		sb.WriteString("</span>")
	}
	return sb.String()
}

func writeStyleCSS(sb *strings.Builder, st theme.Style) {
	fmt.Fprintf(sb, "color:%s;", st.Foreground.Hex())
	if st.FontStyle&theme.Bold != 0 {
		sb.WriteString("font-weight:bold;")
	}
	if st.FontStyle&theme.Italic != 0 {
		sb.WriteString("font-style:italic;")
	}
	if st.FontStyle&theme.Underline != 0 {
		sb.WriteString("text-decoration:underline;")
	}
}

// ClassedHTML formats a parsed line as <span> elements classed by scope
// atoms, for styling with a stylesheet instead of inline colors. The
// caller keeps the stack across lines.
func ClassedHTML(ops []parse.Op, line string, stack *scope.Stack) (string, error) {
	var sb strings.Builder
	it := highlight.NewScopeRangeIterator(ops, line)
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		if err := stack.Apply(r.Op); err != nil {
			return sb.String(), err
		}
		text := it.Text(r)
		if text == "" {
			continue
		}
		top, ok := stack.Top()
		if !ok || top.IsEmpty() {
			sb.WriteString(html.EscapeString(text))
			continue
		}
		sb.WriteString(`<span class="`)
		sb.WriteString(scopeClasses(top))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(text))
		sb.WriteString("</span>")
	}
	return sb.String(), nil
}

// scopeClasses renders a scope's atoms as space separated class names,
// dots replaced since CSS classes cannot carry them.
func scopeClasses(sc scope.Scope) string {
	return strings.ReplaceAll(sc.String(), ".", " ")
}

// CSS renders a stylesheet for ClassedHTML output from a theme: one rule
// per theme item whose selector is a plain scope path.
func CSS(t *theme.Theme) string {
	var sb strings.Builder
	def := t.Default()
	fmt.Fprintf(&sb, "pre { color:%s; background-color:%s; }\n", def.Foreground.Hex(), def.Background.Hex())
	for _, item := range t.Items {
		for _, sel := range item.Selectors.List {
			if len(sel.Path) != 1 || len(sel.Excludes) != 0 {
				continue
			}
			// each atom is a class, so the dotted form doubles as a CSS
			// compound class selector
			sb.WriteString("." + sel.Path[0].String())
			sb.WriteString(" { ")
			if item.Style.Foreground != nil {
				fmt.Fprintf(&sb, "color:%s;", item.Style.Foreground.Hex())
			}
			if item.Style.Background != nil {
				fmt.Fprintf(&sb, "background-color:%s;", item.Style.Background.Hex())
			}
			if item.Style.FontStyle != nil {
				fs := *item.Style.FontStyle
				if fs&theme.Bold != 0 {
					sb.WriteString("font-weight:bold;")
				}
				if fs&theme.Italic != 0 {
					sb.WriteString("font-style:italic;")
				}
				if fs&theme.Underline != 0 {
					sb.WriteString("text-decoration:underline;")
				}
			}
			sb.WriteString(" }\n")
		}
	}
	return sb.String()
}
