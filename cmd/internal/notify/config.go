package notify

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSendQueue = 16
	minSendQueue     = 4

	defaultWriteTimeout     = 5 * time.Second
	defaultReadIdle         = 2 * time.Minute
	defaultHeartbeatEvery   = 25 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	defaultRateEvents       = 30
	defaultRateWindow       = 10 * time.Second

	closeGrace      = time.Second
	maxPingFailures = 3
	maxFrameBytes   = 4 << 10

	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Env keys read by ConfigFromEnv.
const (
	EnvAllowedOrigins   = "BINHACKEN_WS_ALLOWED_ORIGINS"
	EnvOriginRequired   = "BINHACKEN_WS_ORIGIN_REQUIRED"
	EnvSendQueue        = "BINHACKEN_WS_SEND_QUEUE"
	EnvWriteTimeout     = "BINHACKEN_WS_WRITE_TIMEOUT"
	EnvReadIdle         = "BINHACKEN_WS_READ_IDLE_TIMEOUT"
	EnvHeartbeatEvery   = "BINHACKEN_WS_HEARTBEAT_INTERVAL"
	EnvHeartbeatTimeout = "BINHACKEN_WS_HEARTBEAT_TIMEOUT"
)

// Config tunes the gateway.
type Config struct {
	AllowedOrigins []string
	OriginRequired bool

	SendQueue        int
	WriteTimeout     time.Duration
	ReadIdle         time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultConfig allows localhost origins only.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:   splitCSV(defaultAllowedOrigins),
		OriginRequired:   true,
		SendQueue:        defaultSendQueue,
		WriteTimeout:     defaultWriteTimeout,
		ReadIdle:         defaultReadIdle,
		HeartbeatEvery:   defaultHeartbeatEvery,
		HeartbeatTimeout: defaultHeartbeatTimeout,
		RateEvents:       defaultRateEvents,
		RateWindow:       defaultRateWindow,
	}
}

// ConfigFromEnv overlays environment values on DefaultConfig.
// Unparsable values keep the default.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv(EnvAllowedOrigins)); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}
	c.OriginRequired = envBool(EnvOriginRequired, c.OriginRequired)
	c.SendQueue = envInt(EnvSendQueue, c.SendQueue)
	c.WriteTimeout = envDuration(EnvWriteTimeout, c.WriteTimeout)
	c.ReadIdle = envDuration(EnvReadIdle, c.ReadIdle)
	c.HeartbeatEvery = envDuration(EnvHeartbeatEvery, c.HeartbeatEvery)
	c.HeartbeatTimeout = envDuration(EnvHeartbeatTimeout, c.HeartbeatTimeout)
	return c
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.SendQueue < minSendQueue {
		c.SendQueue = max(d.SendQueue, minSendQueue)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdle <= 0 {
		c.ReadIdle = d.ReadIdle
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
