package secret

import "strings"

// Mask returns a representation of s that is safe to log.
// Short secrets (<= 5 chars) are fully masked, medium ones (<= 20) keep their
// first and last characters, longer ones keep the first three and the last one.
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}
