package utils

import "strings"

// NormalizePhone keeps digits only, so "010-1111-1111" and "01011111111"
// compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
