package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme identifies the family of a stored hash string.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeArgon2id
	SchemeBcrypt
	SchemeSHA256Hex
)

func (s Scheme) String() string {
	switch s {
	case SchemeArgon2id:
		return "argon2id"
	case SchemeBcrypt:
		return "bcrypt"
	case SchemeSHA256Hex:
		return "sha256"
	default:
		return "unknown"
	}
}

// Identify classifies encoded without verifying it.
func Identify(encoded string) Scheme {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return SchemeArgon2id
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return SchemeBcrypt
	case isSHA256Hex(encoded):
		return SchemeSHA256Hex
	default:
		return SchemeUnknown
	}
}

// Result is the outcome of Check.
type Result struct {
	Match bool
	// NeedsRehash is set on a match whose stored hash should be replaced
	// with a fresh Argon2id hash.
	NeedsRehash bool
}

// Check verifies password against any supported stored hash.
func (c Config) Check(encoded, password string) (Result, error) {
	switch Identify(encoded) {
	case SchemeArgon2id:
		ok, err := c.Verify(encoded, password)
		if err != nil || !ok {
			return Result{}, err
		}
		return Result{Match: true, NeedsRehash: c.Outdated(encoded)}, nil

	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return Result{Match: true, NeedsRehash: true}, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return Result{}, nil
		default:
			return Result{}, ErrInvalidHash
		}

	case SchemeSHA256Hex:
		sum := sha256.Sum256([]byte(password))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), []byte(encoded)) == 1 {
			return Result{Match: true, NeedsRehash: true}, nil
		}
		return Result{}, nil

	default:
		return Result{}, ErrInvalidHash
	}
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
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
