package authn

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"binhacken/cmd/identity"
	"binhacken/cmd/internal/auth/cookie"
	"binhacken/cmd/security/token"
)

// Env var names.
const (
	EnvKeyMode      = "BINHACKEN_SESSION_KEY_MODE"
	EnvRegisterTANs = "BINHACKEN_REGISTER_TANS"
)

// KeyMode selects what identifies a user inside sessions and cookies.
type KeyMode string

const (
	// KeyByID uses the immutable numeric user id. Renames never touch sessions.
	KeyByID KeyMode = "id"
	// KeyByName uses the display name; renames cascade to session rows.
	KeyByName KeyMode = "name"
)

// IdentityCookie returns the cookie name carrying the identity key.
func (m KeyMode) IdentityCookie() string {
	if m == KeyByName {
		return cookie.NameUsername
	}
	return cookie.NameUserID
}

func (m KeyMode) keyOf(u identity.User) string {
	if m == KeyByName {
		return u.Name
	}
	return strconv.FormatInt(u.ID, 10)
}

// Config is the authenticator policy.
type Config struct {
	KeyMode KeyMode

	// TANDigests are lower-case SHA-256 hex digests of the registration TANs.
	// Registration is closed when empty.
	TANDigests []string
}

// DefaultConfig keys sessions by user id with registration closed.
func DefaultConfig() Config {
	return Config{KeyMode: KeyByID}
}

// LoadConfigFromEnv reads:
//   - BINHACKEN_SESSION_KEY_MODE ("id" or "name", default "id")
//   - BINHACKEN_REGISTER_TANS (comma-separated SHA-256 hex digests)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	switch v := KeyMode(strings.ToLower(strings.TrimSpace(os.Getenv(EnvKeyMode)))); v {
	case "":
	case KeyByID, KeyByName:
		cfg.KeyMode = v
	default:
		return Config{}, fmt.Errorf("%w: %s=%q", ErrConfig, EnvKeyMode, v)
	}

	for _, d := range strings.Split(os.Getenv(EnvRegisterTANs), ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !isSHA256Hex(d) {
			return Config{}, fmt.Errorf("%w: %s must hold sha256 hex digests", ErrConfig, EnvRegisterTANs)
		}
		cfg.TANDigests = append(cfg.TANDigests, d)
	}
	return cfg, nil
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
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

// tanValid compares the digest of tan against every configured digest.
func (c Config) tanValid(tan string) bool {
	tan = strings.TrimSpace(tan)
	if tan == "" {
		return false
	}
	d := token.HashSHA256Hex(tan)
	ok := false
	for _, want := range c.TANDigests {
		if token.EqualHex(d, want) {
			ok = true
		}
	}
	return ok
}
