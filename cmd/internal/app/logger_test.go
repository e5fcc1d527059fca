package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLogLevel(tc.in), "input %q", tc.in)
	}
}

func TestNewHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newHandler(&buf, "info", "json", false)).Info("server.start", "addr", ":8080")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "server.start", rec["msg"])
	assert.Equal(t, ":8080", rec["addr"])
	assert.Contains(t, rec, "source")

	buf.Reset()
	slog.New(newHandler(&buf, "info", "Pretty", false)).Info("server.start", "addr", ":8080")
	assert.Contains(t, buf.String(), "[INFO] server.start")
	assert.Contains(t, buf.String(), "addr=:8080")
}
