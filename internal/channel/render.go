package channel

import (
	"strings"

	"expirywatch/internal/compose"
	"expirywatch/pkg/tgui"
)

// RenderHTML renders an alert for HTML-capable chat channels. Every value
// is escaped; only the tags added here are live markup.
func RenderHTML(a compose.Alert) string {
	parts := make([]tgui.H, 0, a.FieldCount()+3)
	parts = append(parts, tgui.B(a.Headline()), "")
	for _, f := range a.Fields() {
		if f.Label == "" {
			parts = append(parts, tgui.Esc(f.Value))
			continue
		}
		parts = append(parts, tgui.KV(f.Label, f.Value))
	}
	if a.Footer() != "" {
		parts = append(parts, tgui.I(a.Footer()))
	}
	return tgui.Fit(tgui.MaxMessageRunes, parts...).String()
}

// RenderHTMLDocument wraps RenderHTML output for email bodies.
func RenderHTMLDocument(a compose.Alert) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>")
	b.WriteString("<h2>")
	b.WriteString(tgui.Esc(a.Headline()).String())
	b.WriteString("</h2><table>")
	for _, f := range a.Fields() {
		b.WriteString("<tr><th align=\"left\">")
		b.WriteString(tgui.Esc(f.Label).String())
		b.WriteString("</th><td>")
		b.WriteString(tgui.Esc(f.Value).String())
		b.WriteString("</td></tr>")
	}
	b.WriteString("</table>")
	if a.Footer() != "" {
		b.WriteString("<p><small>")
		b.WriteString(tgui.Esc(a.Footer()).String())
		b.WriteString("</small></p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
