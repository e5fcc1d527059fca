package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"binhacken/cmd/internal/auth/websession"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvHTTPAddr, "127.0.0.1:9999")
	t.Setenv(EnvLogFormat, "pretty")
	t.Setenv(EnvDBMaxConns, "-1")
	t.Setenv(EnvWebSessionTTL, "2h")
	t.Setenv(EnvWriteTimeout, "nonsense")
	t.Setenv(EnvDevMode, "true")
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvRedisURL, "")

	cfg := LoadConfig()
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, "binhacken", cfg.DBSchema)
	assert.Equal(t, 2*time.Hour, cfg.WebSessionTTL)
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout)
	assert.True(t, cfg.DevMode)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(EnvWebSessionTTL, "")
	t.Setenv(EnvLogLevel, "")
	cfg := LoadConfig()
	assert.Equal(t, websession.DefaultTTL, cfg.WebSessionTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}
