package util

import "strings"

// DisplaySnippet trims a text to at most max runes for API payloads,
// appending an ellipsis when it had to cut.
func DisplaySnippet(s string, max int) string {
	s = strings.TrimSpace(CollapseWhitespace(s))
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}
