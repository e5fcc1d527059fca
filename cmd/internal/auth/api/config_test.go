package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(EnvMaxBodyBytes, "1024")
	t.Setenv(EnvTrustProxy, "true")
	t.Setenv(EnvLoginMaxFailures, "-3")
	t.Setenv(EnvLoginWindow, "2m")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, DefaultConfig().LoginMaxFailures, cfg.LoginMaxFailures)
	assert.Equal(t, 2*time.Minute, cfg.LoginWindow)
}
