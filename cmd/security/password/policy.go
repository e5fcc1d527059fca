package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passwort":    {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"qwertz123":   {},
	"11111111":    {},
	"letmein1":    {},
}

// looksVeryWeak is a tiny blocklist plus two shape checks, nothing more.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	allSame, onlyDigits := true, true
	for _, r := range s {
		if r != first {
			allSame = false
		}
		if !unicode.IsDigit(r) {
			onlyDigits = false
		}
	}
	return allSame || (onlyDigits && utf8.RuneCountInString(s) < 12)
}
