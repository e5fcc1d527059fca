package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env var names read by LoadConfig. Package-specific settings (cookie,
// session, password, websocket) are read by their own packages.
const (
	EnvHTTPAddr          = "BINHACKEN_HTTP_ADDR"
	EnvLogLevel          = "BINHACKEN_LOG_LEVEL"
	EnvLogFormat         = "BINHACKEN_LOG_FORMAT"
	EnvDatabaseURL       = "BINHACKEN_DATABASE_URL"
	EnvDBSchema          = "BINHACKEN_DB_SCHEMA"
	EnvDBMaxConns        = "BINHACKEN_DB_MAX_CONNS"
	EnvDBMinConns        = "BINHACKEN_DB_MIN_CONNS"
	EnvRedisURL          = "BINHACKEN_REDIS_URL"
	EnvWebSessionTTL     = "BINHACKEN_WEBSESSION_TTL"
	EnvDevMode           = "BINHACKEN_DEV"
	EnvReadinessRequire  = "BINHACKEN_READINESS_REQUIRE_DB"
	EnvReadHeaderTimeout = "BINHACKEN_HTTP_READ_HEADER_TIMEOUT"
	EnvReadTimeout       = "BINHACKEN_HTTP_READ_TIMEOUT"
	EnvWriteTimeout      = "BINHACKEN_HTTP_WRITE_TIMEOUT"
	EnvIdleTimeout       = "BINHACKEN_HTTP_IDLE_TIMEOUT"
	EnvMaxHeaderBytes    = "BINHACKEN_HTTP_MAX_HEADER_BYTES"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

// EnvBool reads a bool env var; unparsable values keep the default.
func EnvBool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// EnvDuration reads a positive Go duration with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
