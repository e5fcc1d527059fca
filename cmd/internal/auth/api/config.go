package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env var names.
const (
	EnvMaxBodyBytes     = "BINHACKEN_AUTH_MAX_BODY_BYTES"
	EnvTrustProxy       = "BINHACKEN_AUTH_TRUST_PROXY"
	EnvLoginMaxFailures = "BINHACKEN_AUTH_LOGIN_MAX_FAILURES"
	EnvLoginWindow      = "BINHACKEN_AUTH_LOGIN_WINDOW"
)

// Config controls request limits and login throttling.
type Config struct {
	MaxBodyBytes int64

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	// LoginMaxFailures failed attempts per address or name within
	// LoginWindow block further attempts until the window passes.
	LoginMaxFailures int
	LoginWindow      time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:     64 << 10,
		TrustProxy:       false,
		LoginMaxFailures: 10,
		LoginWindow:      15 * time.Minute,
	}
}

// LoadConfigFromEnv overlays env values on DefaultConfig. Invalid values keep the default.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		MaxBodyBytes:     envInt64(EnvMaxBodyBytes, d.MaxBodyBytes),
		TrustProxy:       envBool(EnvTrustProxy, d.TrustProxy),
		LoginMaxFailures: int(envInt64(EnvLoginMaxFailures, int64(d.LoginMaxFailures))),
		LoginWindow:      envDuration(EnvLoginWindow, d.LoginWindow),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
