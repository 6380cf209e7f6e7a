package tgui

// TruncRunes shortens s to n runes followed by "…". Strings of n runes or
// fewer are returned unchanged.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
