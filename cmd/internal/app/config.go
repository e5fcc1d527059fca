package app

import (
	"time"

	"binhacken/cmd/internal/auth/websession"
)

// Config is the process-level configuration.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects Postgres stores; empty means in-memory stores.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisURL selects Redis for connection state and login throttling.
	RedisURL      string
	WebSessionTTL time.Duration

	// DevMode allows a random cookie secret when none is configured.
	DevMode bool

	// ReadinessRequireDB makes /readyz fail unless Postgres is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString(EnvHTTPAddr, "0.0.0.0:8080"),
		LogLevel:  EnvString(EnvLogLevel, "info"),
		LogFormat: EnvString(EnvLogFormat, "json"),

		ReadHeaderTimeout: EnvDuration(EnvReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       EnvDuration(EnvReadTimeout, 15*time.Second),
		WriteTimeout:      EnvDuration(EnvWriteTimeout, 15*time.Second),
		IdleTimeout:       EnvDuration(EnvIdleTimeout, 60*time.Second),
		MaxHeaderBytes:    EnvInt(EnvMaxHeaderBytes, 1<<20),

		DatabaseURL: EnvString(EnvDatabaseURL, ""),
		DBSchema:    EnvString(EnvDBSchema, "binhacken"),
		DBMaxConns:  EnvInt32(EnvDBMaxConns, 10),
		DBMinConns:  EnvInt32(EnvDBMinConns, 0),

		RedisURL:      EnvString(EnvRedisURL, ""),
		WebSessionTTL: EnvDuration(EnvWebSessionTTL, websession.DefaultTTL),

		DevMode:            EnvBool(EnvDevMode, false),
		ReadinessRequireDB: EnvBool(EnvReadinessRequire, false),
	}
}
