package session

import (
	"os"
	"strings"
	"time"
)

// Env var names.
const (
	EnvMaxAge        = "BINHACKEN_SESSION_MAX_AGE"
	EnvPurgeInterval = "BINHACKEN_SESSION_PURGE_INTERVAL"
	EnvRequireHMAC   = "BINHACKEN_REQUIRE_TOKEN_HMAC"
)

// Config holds session lifetime policy.
type Config struct {
	// MaxAge is the lifetime of a session counted from its creation: older
	// rows are rejected by Validate and removed by PurgeExpired. Rotation does
	// not extend it.
	MaxAge time.Duration

	// PurgeInterval is how often the Sweeper runs.
	PurgeInterval time.Duration

	// RequireHMAC refuses to start without a token HMAC key.
	RequireHMAC bool
}

// DefaultMaxAge matches the cookie lifetime.
const DefaultMaxAge = 30 * 24 * time.Hour

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		MaxAge:        DefaultMaxAge,
		PurgeInterval: time.Hour,
		RequireHMAC:   false,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations are Go duration strings):
//   - BINHACKEN_SESSION_MAX_AGE (>= 1m)
//   - BINHACKEN_SESSION_PURGE_INTERVAL (>= 1s)
//   - BINHACKEN_REQUIRE_TOKEN_HMAC (true/false)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv(EnvMaxAge)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Minute {
			return Config{}, ErrConfig
		}
		cfg.MaxAge = d
	}

	if v := strings.TrimSpace(os.Getenv(EnvPurgeInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			return Config{}, ErrConfig
		}
		cfg.PurgeInterval = d
	}

	if v := strings.TrimSpace(os.Getenv(EnvRequireHMAC)); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			cfg.RequireHMAC = true
		case "0", "false", "no", "off":
			cfg.RequireHMAC = false
		default:
			return Config{}, ErrConfig
		}
	}

	return cfg, nil
}
