package compose

import (
	"strings"
	"unicode"

	"expirywatch/pkg/tgui"
)

const maxFieldRunes = 256

// clean makes a value safe for a single labelled line: control characters
// and line breaks become spaces, invisible format characters are dropped,
// runs of spaces collapse, and the result is length-limited.
// Empty values render as "-".
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsControl(r) || unicode.IsSpace(r):
			space = true
			continue
		case unicode.Is(unicode.Cf, r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := tgui.TruncRunes(b.String(), maxFieldRunes)
	if out == "" {
		return "-"
	}
	return out
}
