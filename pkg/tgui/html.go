package tgui

import (
	"html"
	"strings"
	"unicode/utf8"
)

// H is HTML that is safe to send with ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name string, inner H) H { return "<" + H(name) + ">" + inner + "</" + H(name) + ">" }

func B(s string) H { return tag("b", Esc(s)) }
func I(s string) H { return tag("i", Esc(s)) }

// KV renders "<b>label:</b> value" with both sides escaped.
func KV(label, value string) H { return tag("b", Esc(label+":")) + " " + Esc(value) }

// Fit joins lines with newlines, keeping at most max runes. Lines that do
// not fit are dropped whole and replaced by an ellipsis line, so markup is
// never cut inside a tag.
func Fit(max int, lines ...H) H {
	var b strings.Builder
	used := 0
	for i, l := range lines {
		n := utf8.RuneCountInString(string(l))
		if i > 0 {
			n++
		}
		if used+n > max {
			switch {
			case i == 0:
				b.WriteString("…")
			case used+2 <= max:
				b.WriteString("\n…")
			}
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(l))
		used += n
	}
	return H(b.String())
}
