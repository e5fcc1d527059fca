package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:5173"

func headerIdentify(r *http.Request) (string, string, bool) {
	key := r.Header.Get("X-Test-Key")
	return key, r.Header.Get("X-Test-Sid"), key != ""
}

func newTestGateway(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewGateway(hub, headerIdentify, DefaultConfig(), nil))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(ctx context.Context, srv *httptest.Server, origin string, protos ...string) (*websocket.Conn, *http.Response, error) {
	return websocket.Dial(ctx, srv.URL, &websocket.DialOptions{
		Subprotocols: protos,
		HTTPHeader: http.Header{
			"Origin":     {origin},
			"X-Test-Key": {"42"},
			"X-Test-Sid": {"sid-1"},
		},
	})
}

func readEvent(ctx context.Context, t *testing.T, c *websocket.Conn) Event {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestGateway_RevocationClosesSocket(t *testing.T) {
	t.Parallel()
	hub, srv := newTestGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := dial(ctx, srv, testOrigin, Subprotocol)
	require.NoError(t, err)
	defer func() { _ = c.CloseNow() }()

	hello := readEvent(ctx, t, c)
	assert.Equal(t, TypeHello, hello.Type)
	assert.Equal(t, Version, hello.V)
	require.Equal(t, 1, hub.Count("42"))

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, TypePong, readEvent(ctx, t, c).Type)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{nope`)))
	bad := readEvent(ctx, t, c)
	assert.Equal(t, TypeError, bad.Type)
	assert.Equal(t, "bad_json", bad.Code)

	hub.SessionRevoked("42", "sid-1", ReasonLogout)
	ev := readEvent(ctx, t, c)
	assert.Equal(t, TypeRevoked, ev.Type)
	assert.Equal(t, ReasonLogout, ev.Reason)

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	require.Eventually(t, func() bool { return hub.Count("42") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_RequiresSubprotocol(t *testing.T) {
	t.Parallel()
	_, srv := newTestGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := dial(ctx, srv, testOrigin)
	require.NoError(t, err)
	defer func() { _ = c.CloseNow() }()

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusProtocolError, websocket.CloseStatus(err))
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()
	_, srv := newTestGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := dial(ctx, srv, "https://evil.example", Subprotocol)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGateway_RequiresIdentity(t *testing.T) {
	t.Parallel()
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()
	got := originPatterns([]string{"http://LocalHost:3000", "localhost", "*", "https://app.example"})
	assert.Equal(t, []string{"app.example", "app.example:*", "localhost", "localhost:*"}, got)
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	allowed := []string{"http://localhost"}
	cases := []struct {
		name     string
		origin   string
		required bool
		ok       bool
	}{
		{"missing required", "", true, false},
		{"missing optional", "", false, true},
		{"host match ignores port", "http://localhost:5173", true, true},
		{"foreign", "http://example.com", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/session", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := checkOrigin(r, allowed, tc.required)
			assert.Equal(t, tc.ok, err == nil, "err=%v", err)
		})
	}
}
