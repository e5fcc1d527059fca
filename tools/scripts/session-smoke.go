// Package main is a CI-friendly smoke test for a running binhacken server.
//
// It validates:
//   - login (or registration when -tan is given) issues the cookie triple
//   - /ws/session handshake, subprotocol selection and session.hello
//   - resuming from cookies rotates the token
//   - replaying the pre-rotation cookies revokes the session, and the open
//     tab receives session.theft_suspected followed by a 1008 close
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "binhacken.session.v1"
	connCookie   = "binhacken.conn"
	tokenCookie  = "session.token"
	maxReadBytes = 1 << 16
)

type event struct {
	V      int    `json:"v"`
	Type   string `json:"type"`
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// browser is an HTTP client with its own cookie jar that does not follow redirects.
type browser struct {
	name string
	base *url.URL
	http *http.Client
}

func main() {
	var (
		base    = flag.String("base", "http://127.0.0.1:8080", "server base URL")
		origin  = flag.String("origin", "http://localhost:5173", "Origin header for the WebSocket handshake")
		user    = flag.String("user", "smoke-"+fmt.Sprint(time.Now().Unix()), "username")
		pass    = flag.String("pass", "smoke-test-password", "password")
		tan     = flag.String("tan", "", "registration TAN; empty logs in an existing user instead")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	u, err := url.Parse(*base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fatalf("invalid -base %q", *base)
	}
	root := context.Background()

	alice := newBrowser("alice", u)
	if *tan != "" {
		alice.mustRedirect("/auth/register", url.Values{"username": {*user}, "password": {*pass}, "tan": {*tan}}, "/home")
	} else {
		alice.mustRedirect("/auth/login", url.Values{"username": {*user}, "password": {*pass}}, "/home")
	}
	logf(*verbose, "logged in as %s", *user)

	// Copy the persistent cookies before they rotate.
	thief := newBrowser("thief", u)
	thief.http.Jar.SetCookies(u, alice.cookies(false))
	before := alice.cookie(tokenCookie)

	tab := mustConnect(root, alice, *origin, *timeout)
	defer func() { _ = tab.CloseNow() }()
	if ev := mustRead(root, tab, *timeout); ev.Type != "session.hello" {
		fatalf("first event: got %q want session.hello", ev.Type)
	}
	logf(*verbose, "tab connected")

	// A browser restart drops the connection cookie; the next request resumes
	// from the persistent triple and rotates the token.
	alice.restart()
	alice.mustStatus("/me", http.StatusOK)
	if after := alice.cookie(tokenCookie); after == "" || after == before {
		fatalf("token not rotated on resume")
	}
	logf(*verbose, "token rotated")

	// Replaying the stale token must kill the session everywhere.
	thief.mustStatus("/me", http.StatusSeeOther)
	ev := mustRead(root, tab, *timeout)
	if ev.Type != "session.theft_suspected" {
		fatalf("tab event: got %q want session.theft_suspected", ev.Type)
	}
	mustClosed(root, tab, websocket.StatusPolicyViolation, *timeout)

	alice.restart()
	alice.mustStatus("/me", http.StatusSeeOther)

	fmt.Println("OK")
}

func newBrowser(name string, base *url.URL) *browser {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	return &browser{name: name, base: base, http: &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) cookies(withConn bool) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range b.http.Jar.Cookies(b.base) {
		if withConn || c.Name != connCookie {
			out = append(out, c)
		}
	}
	return out
}

func (b *browser) cookie(name string) string {
	for _, c := range b.http.Jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) restart() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	jar.SetCookies(b.base, b.cookies(false))
	b.http.Jar = jar
}

func (b *browser) mustRedirect(path string, form url.Values, want string) {
	resp, err := b.http.PostForm(b.base.JoinPath(path).String(), form)
	if err != nil {
		fatalf("%s POST %s: %v", b.name, path, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		fatalf("%s POST %s: status %d", b.name, path, resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != want {
		fatalf("%s POST %s: redirected to %q want %q", b.name, path, got, want)
	}
}

func (b *browser) mustStatus(path string, want int) {
	resp, err := b.http.Get(b.base.JoinPath(path).String())
	if err != nil {
		fatalf("%s GET %s: %v", b.name, path, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != want {
		fatalf("%s GET %s: status %d want %d", b.name, path, resp.StatusCode, want)
	}
}

func mustConnect(parent context.Context, b *browser, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := *b.base.JoinPath("/ws/session")
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		HTTPClient:   b.http,
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", b.name, err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) event {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read event: %v", err)
	}
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		fatalf("bad json: %v", err)
	}
	if ev.Type == "" || ev.ID == "" {
		fatalf("malformed event: %s", data)
	}
	return ev
}

func mustClosed(parent context.Context, conn *websocket.Conn, want websocket.StatusCode, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != want {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("socket still open after revocation")
		}
		fatalf("close status: got %v want %v (%v)", got, want, err)
	}
}

func logf(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
