package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the limit on account names, counted in runes.
const MaxNameLength = 32

// NormalizeName performs case-insensitive canonicalization.
// Uniqueness is enforced on the normalized form; the display form is kept as typed.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CleanName trims s and checks it is usable as an account name.
// It returns the display name and its normalized form.
func CleanName(s string) (display, norm string, ok bool) {
	display = strings.TrimSpace(s)
	n := utf8.RuneCountInString(display)
	if n == 0 || n > MaxNameLength || !utf8.ValidString(display) {
		return "", "", false
	}
	for _, r := range display {
		// Names end up in URLs and cookie values; keep them printable and slash-free.
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return "", "", false
		}
	}
	return display, NormalizeName(display), true
}
