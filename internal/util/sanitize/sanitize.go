package sanitize

import (
	"strings"
	"unicode"
)

// Title strips control characters from s and truncates it to maxLen
// runes. Originally for terminal titles; reused anywhere a
// caller-controlled or engine-produced string needs to be made safe to
// embed in a short single-line field.
func Title(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
