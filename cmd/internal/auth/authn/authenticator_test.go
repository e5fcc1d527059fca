package authn

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binhacken/cmd/identity"
	"binhacken/cmd/internal/auth/cookie"
	"binhacken/cmd/internal/auth/session"
	"binhacken/cmd/internal/auth/websession"
	"binhacken/cmd/security/password"
	"binhacken/cmd/security/token"
)

const testTAN = "open-sesame"

type event struct {
	kind, key, newKey, sid, reason string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) SessionRevoked(key, sid, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{kind: "revoked", key: key, sid: sid, reason: reason})
}

func (n *recordingNotifier) IdentityRenamed(oldKey, newKey, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{kind: "renamed", key: oldKey, newKey: newKey})
}

func (n *recordingNotifier) all() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

type fixture struct {
	auth     *Authenticator
	ids      *identity.Service
	sessions *session.Service
	codec    *cookie.Codec
	notes    *recordingNotifier
}

func newFixture(t *testing.T, mode KeyMode) *fixture {
	t.Helper()

	pw := password.FastConfig()
	pw.Policy.MinLength = 1
	ids, err := identity.NewService(identity.NewMemoryStore(), pw)
	require.NoError(t, err)

	sessions := session.NewService(session.DefaultConfig(), session.NewMemoryStore())

	codec, err := cookie.New(cookie.Config{
		Secret:         bytes.Repeat([]byte("s"), cookie.MinSecretBytes),
		IdentityCookie: mode.IdentityCookie(),
	})
	require.NoError(t, err)

	conns := websession.NewManager(websession.NewMemoryStore(), 0, false, "")
	notes := &recordingNotifier{}

	cfg := Config{KeyMode: mode, TANDigests: []string{token.HashSHA256Hex(testTAN)}}
	a, err := New(cfg, ids, sessions, codec, conns, WithNotifier(notes))
	require.NoError(t, err)

	return &fixture{auth: a, ids: ids, sessions: sessions, codec: codec, notes: notes}
}

// browser keeps cookies between requests like a user agent would.
type browser struct {
	jar map[string]string
}

func newBrowser() *browser { return &browser{jar: map[string]string{}} }

func (b *browser) clone() *browser { return &browser{jar: maps.Clone(b.jar)} }

// restart drops the connection cookie, as closing the browser does.
func (b *browser) restart() { delete(b.jar, websession.CookieName) }

func (b *browser) request(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range b.jar {
		r.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	return r
}

func (b *browser) do(fn func(w http.ResponseWriter, r *http.Request)) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fn(rec, b.request("/"))
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.jar, c.Name)
			continue
		}
		b.jar[c.Name] = c.Value
	}
	return rec
}

func (f *fixture) fields(b *browser) cookie.Fields {
	return f.codec.Read(b.request("/"))
}

func (f *fixture) resume(b *browser) (Principal, State, error) {
	var (
		p   Principal
		st  State
		err error
	)
	b.do(func(w http.ResponseWriter, r *http.Request) { p, st, err = f.auth.Resume(w, r) })
	return p, st, err
}

func (f *fixture) register(t *testing.T, b *browser, name, pass string) Principal {
	t.Helper()
	var (
		p   Principal
		err error
	)
	b.do(func(w http.ResponseWriter, r *http.Request) { p, err = f.auth.Register(w, r, name, pass, testTAN) })
	require.NoError(t, err)
	return p
}

func (f *fixture) login(t *testing.T, b *browser, name, pass string) Principal {
	t.Helper()
	var (
		p   Principal
		err error
	)
	b.do(func(w http.ResponseWriter, r *http.Request) { p, err = f.auth.Login(w, r, name, pass) })
	require.NoError(t, err)
	return p
}

func TestScenario_AliceRotationAndReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByName)
	ctx := context.Background()

	b := newBrowser()
	f.register(t, b, "alice", "pw1")
	b.restart()
	f.login(t, b, "alice", "pw1")

	first := f.fields(b)
	require.True(t, first.Complete())
	assert.Equal(t, "alice", first.IdentityKey)

	rows, err := f.sessions.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1, "login replaces the registration session")

	stolen := b.clone()

	b.restart()
	p, st, err := f.resume(b)
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedViaCookie, st)
	assert.Equal(t, "alice", p.Name)

	second := f.fields(b)
	assert.Equal(t, first.SID, second.SID)
	assert.Equal(t, "alice", second.IdentityKey)
	assert.NotEqual(t, first.Token, second.Token)

	stolen.restart()
	_, st, err = f.resume(stolen)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
	assert.Equal(t, Unauthenticated, st)
	assert.Empty(t, stolen.jar, "cookies are cleared on failure")

	b.restart()
	_, _, err = f.resume(b)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie, "the sid is revoked for everyone")

	rows, err = f.sessions.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Contains(t, f.notes.all(), event{kind: "revoked", key: "alice", sid: first.SID, reason: ReasonTheft})
}

func TestResume_ConnectionFlagSkipsStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	b := newBrowser()
	u := f.register(t, b, "bob", "hunter2")
	before := f.fields(b)

	p, st, err := f.resume(b)
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedThisConnection, st)
	assert.Equal(t, u, p)
	assert.Equal(t, before, f.fields(b), "no rotation on a cached connection")
}

func TestResume_MissingAndPartialCookies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	_, st, err := f.resume(newBrowser())
	assert.ErrorIs(t, err, ErrNoSessionCookie)
	assert.Equal(t, Unauthenticated, st)

	b := newBrowser()
	f.register(t, b, "carol", "pw")
	b.restart()
	delete(b.jar, cookie.NameToken)

	rec := b.do(func(w http.ResponseWriter, r *http.Request) {
		_, _, err = f.auth.Resume(w, r)
	})
	assert.ErrorIs(t, err, ErrNoSessionCookie)
	assert.NotEmpty(t, rec.Result().Cookies(), "partial cookies are cleared")
	assert.Empty(t, b.jar)
}

func TestResume_ForgedCookiesAreAbsent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	b := newBrowser()
	f.register(t, b, "dave", "pw")
	fields := f.fields(b)

	forger, err := cookie.New(cookie.Config{Secret: bytes.Repeat([]byte("x"), cookie.MinSecretBytes)})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, forger.Write(rec, fields))

	evil := newBrowser()
	for _, c := range rec.Result().Cookies() {
		evil.jar[c.Name] = c.Value
	}
	assert.True(t, f.fields(evil).Empty())

	_, _, err = f.resume(evil)
	assert.ErrorIs(t, err, ErrNoSessionCookie)

	// The real session is untouched.
	b.restart()
	_, st, err := f.resume(b)
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedViaCookie, st)
}

func TestLogin_InvalidCredentialsWritesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)
	f.register(t, newBrowser(), "erin", "right")

	for _, tc := range []struct{ name, pass string }{{"erin", "wrong"}, {"nobody", "right"}} {
		b := newBrowser()
		var err error
		rec := b.do(func(w http.ResponseWriter, r *http.Request) { _, err = f.auth.Login(w, r, tc.name, tc.pass) })
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestLogin_TokenValidatesExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)
	ctx := context.Background()

	u := f.register(t, newBrowser(), "frank", "pw")
	b := newBrowser()
	p := f.login(t, b, "frank", "pw")

	rows, err := f.sessions.List(ctx, p.IdentityKey)
	require.NoError(t, err)
	require.Len(t, rows, 2, "registration browser and login browser")

	fields := f.fields(b)
	assert.Equal(t, p.SID, fields.SID)
	assert.Equal(t, u.IdentityKey, fields.IdentityKey)

	now := time.Now()
	_, err = f.sessions.Validate(ctx, now, fields.IdentityKey, fields.SID, fields.Token)
	require.NoError(t, err)
	_, err = f.sessions.Validate(ctx, now, fields.IdentityKey, fields.SID, fields.Token)
	assert.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestResume_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	b := newBrowser()
	f.register(t, b, "gina", "pw")
	b.restart()

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for range n {
		wg.Add(1)
		go func(c *browser) {
			defer wg.Done()
			_, _, err := f.resume(c)
			if err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}(b.clone())
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestLogout_DestructiveAndIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)
	ctx := context.Background()

	b := newBrowser()
	p := f.register(t, b, "hank", "pw")
	stolen := b.clone()

	for range 2 {
		var err error
		b.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.Logout(w, r) })
		require.NoError(t, err)
	}
	assert.Empty(t, b.jar)

	rows, err := f.sessions.List(ctx, p.IdentityKey)
	require.NoError(t, err)
	assert.Empty(t, rows)

	stolen.restart()
	_, _, err = f.resume(stolen)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)

	assert.Equal(t, []event{{kind: "revoked", key: p.IdentityKey, sid: p.SID, reason: ReasonLogout}}, f.notes.all()[:1])
}

func TestRename_NameModeCascades(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByName)

	laptop := newBrowser()
	f.register(t, laptop, "ivan", "pw")
	phone := newBrowser()
	f.login(t, phone, "ivan", "pw")
	f.register(t, newBrowser(), "judy", "pw")

	var (
		p   Principal
		err error
	)
	laptop.do(func(w http.ResponseWriter, r *http.Request) { p, err = f.auth.Rename(w, r, "judy") })
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Equal(t, "ivan", f.fields(laptop).IdentityKey)

	laptop.do(func(w http.ResponseWriter, r *http.Request) { p, err = f.auth.Rename(w, r, "Ivana") })
	require.NoError(t, err)
	assert.Equal(t, "Ivana", p.Name)
	assert.Equal(t, "Ivana", p.IdentityKey)
	assert.Equal(t, "Ivana", f.fields(laptop).IdentityKey)

	// Pre-rename sid and token under the new key still resume.
	laptop.restart()
	p, st, err := f.resume(laptop)
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedViaCookie, st)
	assert.Equal(t, "Ivana", p.Name)

	// The phone still presents the old key and is refused.
	phone.restart()
	_, _, err = f.resume(phone)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)

	assert.Contains(t, f.notes.all(), event{kind: "renamed", key: "ivan", newKey: "Ivana"})
}

func TestRename_IDModeKeepsOtherDevices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	laptop := newBrowser()
	u := f.register(t, laptop, "kate", "pw")
	phone := newBrowser()
	f.login(t, phone, "kate", "pw")

	var err error
	laptop.do(func(w http.ResponseWriter, r *http.Request) { _, err = f.auth.Rename(w, r, "katie") })
	require.NoError(t, err)

	phone.restart()
	p, _, err := f.resume(phone)
	require.NoError(t, err)
	assert.Equal(t, u.IdentityKey, p.IdentityKey)
	assert.Equal(t, "katie", p.Name)
}

func TestRename_RequiresLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	var err error
	newBrowser().do(func(w http.ResponseWriter, r *http.Request) { _, err = f.auth.Rename(w, r, "x") })
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRegister_Failures(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)
	f.register(t, newBrowser(), "liam", "pw")

	cases := []struct {
		name, user, pass, tan string
		want                  error
	}{
		{"empty name", " ", "pw", testTAN, ErrInvalidInput},
		{"wrong tan", "mia", "pw", "guess", ErrInvalidTAN},
		{"missing tan", "mia", "pw", "", ErrInvalidTAN},
		{"taken", "LIAM", "pw", testTAN, ErrDuplicateIdentity},
		{"bad name", "a/b", "pw", testTAN, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			rec := newBrowser().do(func(w http.ResponseWriter, r *http.Request) {
				_, err = f.auth.Register(w, r, tc.user, tc.pass, tc.tan)
			})
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	b := newBrowser()
	f.register(t, b, "nina", "old")

	var err error
	b.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.ChangePassword(w, r, "wrong", "new") })
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	b.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.ChangePassword(w, r, "old", "new") })
	require.NoError(t, err)

	f.login(t, newBrowser(), "nina", "new")
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)
	ctx := context.Background()

	b := newBrowser()
	p := f.register(t, b, "omar", "pw")
	other := newBrowser()
	f.login(t, other, "omar", "pw")

	var err error
	b.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.DeleteAccount(w, r, "nope") })
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	b.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.DeleteAccount(w, r, "pw") })
	require.NoError(t, err)
	assert.Empty(t, b.jar)

	_, err = f.ids.GetByID(ctx, p.UserID)
	assert.True(t, identity.IsNotFound(err))
	rows, err := f.sessions.List(ctx, p.IdentityKey)
	require.NoError(t, err)
	assert.Empty(t, rows)

	other.restart()
	_, _, err = f.resume(other)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
	assert.Contains(t, f.notes.all(), event{kind: "revoked", key: p.IdentityKey, reason: ReasonDeleted})
}

func TestLogoutEverywhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	a := newBrowser()
	f.register(t, a, "pia", "pw")
	other := newBrowser()
	f.login(t, other, "pia", "pw")

	var err error
	a.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.LogoutEverywhere(w, r) })
	require.NoError(t, err)

	other.restart()
	_, _, err = f.resume(other)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
}

func TestRequireLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	var seen Principal
	h := f.auth.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile?tab=2", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?url=profile%3Ftab%3D2", rec.Header().Get("Location"))

	b := newBrowser()
	p := f.register(t, b, "quinn", "pw")
	b.restart()
	rec = b.do(func(w http.ResponseWriter, r *http.Request) { h.ServeHTTP(w, r) })
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, p.UserID, seen.UserID)
}

type failingSessions struct {
	*session.Service
}

func (failingSessions) Validate(context.Context, time.Time, string, string, string) (string, error) {
	return "", errors.New("connection reset")
}

func TestResume_StoreFailureForcesLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	b := newBrowser()
	f.register(t, b, "rita", "pw")
	b.restart()

	broken, err := New(f.auth.cfg, f.ids, failingSessions{f.sessions}, f.codec, websession.NewManager(websession.NewMemoryStore(), 0, false, ""))
	require.NoError(t, err)

	b.do(func(w http.ResponseWriter, r *http.Request) { _, _, err = broken.Resume(w, r) })
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
	assert.Empty(t, b.jar)
}

// renamedElsewhere registers ivan on a laptop, logs a phone in, then renames
// the account to mallory from the laptop. The phone's connection state still
// says ivan.
func renamedElsewhere(t *testing.T, f *fixture) (laptop, phone *browser) {
	t.Helper()
	laptop = newBrowser()
	f.register(t, laptop, "ivan", "pw")
	phone = newBrowser()
	f.login(t, phone, "ivan", "pw")

	var err error
	laptop.do(func(w http.ResponseWriter, r *http.Request) { _, err = f.auth.Rename(w, r, "mallory") })
	require.NoError(t, err)

	p, st, err := f.resume(phone)
	require.NoError(t, err)
	require.Equal(t, AuthenticatedThisConnection, st)
	require.Equal(t, "ivan", p.IdentityKey)
	return laptop, phone
}

func TestDeleteAccount_StaleConnectionAfterRename(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByName)
	ctx := context.Background()
	laptop, phone := renamedElsewhere(t, f)

	var err error
	phone.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.DeleteAccount(w, r, "pw") })
	require.NoError(t, err)

	rows, err := f.sessions.List(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, rows, "rows under the current name are deleted")
	assert.Contains(t, f.notes.all(), event{kind: "revoked", key: "mallory", reason: ReasonDeleted})

	// Whoever takes the name next must not inherit the laptop session.
	stranger := f.register(t, newBrowser(), "mallory", "other")
	laptop.restart()
	p, _, err := f.resume(laptop)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
	assert.NotEqual(t, stranger.UserID, p.UserID)
}

func TestLogoutEverywhere_StaleConnectionAfterRename(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByName)
	laptop, phone := renamedElsewhere(t, f)

	var err error
	phone.do(func(w http.ResponseWriter, r *http.Request) { err = f.auth.LogoutEverywhere(w, r) })
	require.NoError(t, err)

	laptop.restart()
	_, _, err = f.resume(laptop)
	assert.ErrorIs(t, err, ErrCorruptedSessionCookie)
	assert.Contains(t, f.notes.all(), event{kind: "revoked", key: "mallory", reason: ReasonLogoutAll})
}

func TestRename_StaleConnectionMovesCurrentRows(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByName)
	ctx := context.Background()
	_, phone := renamedElsewhere(t, f)

	var (
		p   Principal
		err error
	)
	phone.do(func(w http.ResponseWriter, r *http.Request) { p, err = f.auth.Rename(w, r, "nora") })
	require.NoError(t, err)
	assert.Equal(t, "nora", p.IdentityKey)

	rows, err := f.sessions.List(ctx, "nora")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	rows, err = f.sessions.List(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, f.notes.all(), event{kind: "renamed", key: "mallory", newKey: "nora"})
}

// unsavableConns loses every connection flag write.
type unsavableConns struct {
	*websession.MemoryStore
}

func (unsavableConns) Put(context.Context, string, websession.State, time.Duration) error {
	return errors.New("redis: connection refused")
}

func TestRequireLogin_GuardedOpDoesNotResumeTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, KeyByID)

	conns := websession.NewManager(unsavableConns{websession.NewMemoryStore()}, 0, false, "")
	a, err := New(f.auth.cfg, f.ids, f.sessions, f.codec, conns)
	require.NoError(t, err)

	b := newBrowser()
	var reg Principal
	b.do(func(w http.ResponseWriter, r *http.Request) { reg, err = a.Register(w, r, "sven", "old", testTAN) })
	require.NoError(t, err)

	var opErr error
	h := a.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opErr = a.ChangePassword(w, r, "old", "new")
	}))
	b.do(func(w http.ResponseWriter, r *http.Request) { h.ServeHTTP(w, r) })
	require.NoError(t, opErr)

	rows, err := f.sessions.List(context.Background(), reg.IdentityKey)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the caller's own session survives")

	var p Principal
	b.do(func(w http.ResponseWriter, r *http.Request) { p, _, err = a.Resume(w, r) })
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, p.UserID)
}
