package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "BINHACKEN_TOKEN_HMAC_KEY"

	// OpaqueBytes is the entropy of every session id and session token.
	OpaqueBytes = 16

	// MinHMACKeyBytes is the policy minimum for an enforced HMAC key.
	MinHMACKeyBytes = 32
)

// NewOpaque returns OpaqueBytes of CSPRNG output encoded as lower-case hex.
func NewOpaque() (string, error) {
	var b [OpaqueBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("token: rand: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// LooksOpaque reports whether s has the shape produced by NewOpaque.
// It is a cheap pre-filter; it never replaces a storage lookup.
func LooksOpaque(s string) bool {
	if len(s) != OpaqueBytes*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// EqualHex compares two hex digests in constant time.
// Length differences are not secret.
func EqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Hasher turns session tokens into storage digests.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key selects SHA-256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// HasherFromEnv builds a Hasher from BINHACKEN_TOKEN_HMAC_KEY.
// When requireHMAC is true a missing or short key is an error; otherwise a
// missing key falls back to SHA-256 and a short key is still rejected.
func HasherFromEnv(requireHMAC bool) (Hasher, error) {
	key, err := HMACKeyFromEnv(MinHMACKeyBytes)
	switch {
	case err == nil:
		return NewHasher(key), nil
	case errors.Is(err, ErrHMACKeyMissing) && !requireHMAC:
		return Hasher{}, nil
	default:
		return Hasher{}, err
	}
}

// Keyed reports whether the hasher uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest of tok.
func (h Hasher) Hash(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// Matches reports whether tok hashes to digest, in constant time.
func (h Hasher) Matches(digest, tok string) bool {
	return EqualHex(digest, h.Hash(tok))
}
