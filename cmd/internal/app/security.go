package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"binhacken/cmd/internal/auth/cookie"
	"binhacken/cmd/internal/auth/session"
	"binhacken/cmd/security/token"
)

// tokenHasher enforces the token hashing policy at startup. Fail-fast: with
// BINHACKEN_REQUIRE_TOKEN_HMAC=true a missing or short key stops the process.
func tokenHasher(cfg session.Config, log *slog.Logger) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireHMAC)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, fmt.Errorf("security policy: %s=true but %s is missing", session.EnvRequireHMAC, token.HMACEnvKey)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, token.MinHMACKeyBytes)
	default:
		return token.Hasher{}, err
	}
	if !h.Keyed() {
		log.Warn("security.token_hash.sha256", "hint", "set "+token.HMACEnvKey+" to key stored token digests")
	}
	return h, nil
}

// cookieConfig loads the cookie codec settings. Without a secret the process
// refuses to start unless dev mode is on, in which case a random secret is
// generated and every cookie dies with the process.
func cookieConfig(identityCookie string, dev bool, log *slog.Logger) (cookie.Config, error) {
	cfg, err := cookie.ConfigFromEnv(identityCookie)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, cookie.ErrSecret) {
		return cookie.Config{}, err
	}
	if !dev || len(cfg.Secret) > 0 {
		return cookie.Config{}, fmt.Errorf("%s: %w", cookie.EnvSecret, err)
	}

	secret := make([]byte, cookie.MinSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return cookie.Config{}, err
	}
	cfg.Secret = secret
	log.Warn("security.cookie_secret.ephemeral", "hint", "set "+cookie.EnvSecret+"; sessions will not survive a restart")
	return cfg, nil
}
