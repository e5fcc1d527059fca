package cookie

import (
	"fmt"
	"os"
	"strings"
)

// Env var names.
const (
	EnvSecret = "BINHACKEN_COOKIE_SECRET"
	EnvSecure = "BINHACKEN_COOKIE_SECURE"
	EnvDomain = "BINHACKEN_COOKIE_DOMAIN"
)

// ConfigFromEnv reads the cookie settings. A missing secret is reported as
// ErrSecret so the caller can decide whether dev mode may generate one.
func ConfigFromEnv(identityCookie string) (Config, error) {
	cfg := Config{
		Secret:         []byte(strings.TrimSpace(os.Getenv(EnvSecret))),
		IdentityCookie: identityCookie,
		MaxAge:         DefaultMaxAge,
		Domain:         strings.TrimSpace(os.Getenv(EnvDomain)),
		Path:           "/",
	}

	if v := strings.TrimSpace(os.Getenv(EnvSecure)); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			cfg.Secure = true
		case "0", "false", "no", "off":
		default:
			return Config{}, fmt.Errorf("%s: invalid boolean", EnvSecure)
		}
	}

	if len(cfg.Secret) < MinSecretBytes {
		return cfg, ErrSecret
	}
	return cfg, nil
}
