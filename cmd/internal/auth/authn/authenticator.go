package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"binhacken/cmd/identity"
	"binhacken/cmd/internal/auth/cookie"
	"binhacken/cmd/internal/auth/session"
	"binhacken/cmd/internal/auth/websession"
	"binhacken/cmd/internal/metrics"
)

// Credentials is the account store. *identity.Service satisfies it.
type Credentials interface {
	Authenticate(ctx context.Context, name, pass string) (identity.User, error)
	Create(ctx context.Context, name, pass string) (identity.User, error)
	Rename(ctx context.Context, id int64, newName string) (before, after identity.User, err error)
	VerifyPassword(ctx context.Context, id int64, pass string) error
	ChangePassword(ctx context.Context, id int64, oldPass, newPass string) error
	Remove(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (identity.User, error)
	GetByName(ctx context.Context, name string) (identity.User, error)
}

// Sessions is the persistent session table. *session.Service satisfies it.
type Sessions interface {
	Create(ctx context.Context, now time.Time, identityKey string) (session.Issued, error)
	Validate(ctx context.Context, now time.Time, identityKey, sid, tok string) (string, error)
	DeleteBySession(ctx context.Context, identityKey, sid string) error
	DeleteAllForIdentity(ctx context.Context, identityKey string) (int64, error)
	RenameIdentity(ctx context.Context, oldKey, newKey string) (int64, error)
}

// Cookies reads and writes the signed cookie triple. *cookie.Codec satisfies it.
type Cookies interface {
	Read(r *http.Request) cookie.Fields
	Write(w http.ResponseWriter, f cookie.Fields) error
	Clear(w http.ResponseWriter)
}

// Connections holds the per-connection flag. *websession.Manager satisfies it.
type Connections interface {
	Load(r *http.Request) (websession.State, error)
	Save(w http.ResponseWriter, r *http.Request, st websession.State) error
	Destroy(w http.ResponseWriter, r *http.Request) error
}

// Notifier receives session lifecycle events. *notify.Hub satisfies it.
type Notifier interface {
	SessionRevoked(identityKey, sid, reason string)
	IdentityRenamed(oldKey, newKey, name string)
}

// Revocation reasons passed to Notifier.SessionRevoked.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
	ReasonDeleted   = "account_deleted"
	ReasonTheft     = "theft"
)

// Authenticator orchestrates resume, login, logout and identity changes.
type Authenticator struct {
	cfg      Config
	creds    Credentials
	sessions Sessions
	cookies  Cookies
	conns    Connections

	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics records resume and login outcomes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(a *Authenticator) { a.metrics = m } }

// WithNotifier reports revocations and renames to n.
func WithNotifier(n Notifier) Option { return func(a *Authenticator) { a.notifier = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New wires an Authenticator.
func New(cfg Config, creds Credentials, sessions Sessions, cookies Cookies, conns Connections, opts ...Option) (*Authenticator, error) {
	if creds == nil || sessions == nil || cookies == nil || conns == nil {
		return nil, errors.New("authn: missing dependency")
	}
	switch cfg.KeyMode {
	case "":
		cfg.KeyMode = KeyByID
	case KeyByID, KeyByName:
	default:
		return nil, fmt.Errorf("%w: key mode %q", ErrConfig, cfg.KeyMode)
	}
	a := &Authenticator{
		cfg:      cfg,
		creds:    creds,
		sessions: sessions,
		cookies:  cookies,
		conns:    conns,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// KeyMode returns the identity key mode in use.
func (a *Authenticator) KeyMode() KeyMode { return a.cfg.KeyMode }

// Resume authenticates the request from the connection flag or, failing that,
// from the cookie triple, rotating the token on success.
//
// Only ErrNoSessionCookie and ErrCorruptedSessionCookie are returned. Storage
// failures count as corrupted: the rotation did not commit, so the user logs in again.
func (a *Authenticator) Resume(w http.ResponseWriter, r *http.Request) (Principal, State, error) {
	ctx := r.Context()

	st, err := a.conns.Load(r)
	if err != nil {
		a.log.Warn("auth.resume.connection_load_fail", "err", err)
	}
	if st.LoggedIn {
		a.metrics.Resume(AuthenticatedThisConnection.String())
		return principalOf(st), AuthenticatedThisConnection, nil
	}

	f := a.cookies.Read(r)
	if !f.Complete() {
		if !f.Empty() {
			a.cookies.Clear(w)
		}
		a.metrics.Resume("none")
		return Principal{}, Unauthenticated, ErrNoSessionCookie
	}

	next, err := a.sessions.Validate(ctx, a.now(), f.IdentityKey, f.SID, f.Token)
	if err != nil {
		a.cookies.Clear(w)
		a.metrics.Resume("corrupted")
		switch {
		case session.IsTheft(err):
			a.log.Warn("auth.resume.theft", "sid", sidPrefix(f.SID))
			a.notify(func(n Notifier) { n.SessionRevoked(f.IdentityKey, f.SID, ReasonTheft) })
		case errors.Is(err, session.ErrInvalidSession):
			a.log.Info("auth.resume.invalid", "reason", string(session.ReasonOf(err)))
		default:
			a.log.Error("auth.resume.store_fail", "err", err)
		}
		return Principal{}, Unauthenticated, ErrCorruptedSessionCookie
	}

	u, err := a.lookup(ctx, f.IdentityKey)
	if err != nil {
		// The session outlived its account.
		a.cookies.Clear(w)
		if identity.IsNotFound(err) {
			_, _ = a.sessions.DeleteAllForIdentity(ctx, f.IdentityKey)
		} else {
			a.log.Error("auth.resume.lookup_fail", "err", err)
		}
		a.metrics.Resume("corrupted")
		return Principal{}, Unauthenticated, ErrCorruptedSessionCookie
	}

	p := Principal{UserID: u.ID, Name: u.Name, IdentityKey: f.IdentityKey, SID: f.SID}

	// Re-sign all three so every cookie gets the sliding expiry.
	if err := a.cookies.Write(w, cookie.Fields{IdentityKey: f.IdentityKey, SID: f.SID, Token: next}); err != nil {
		a.log.Error("auth.resume.cookie_write_fail", "err", err)
	}
	if err := a.conns.Save(w, r, p.state()); err != nil {
		a.log.Warn("auth.resume.connection_save_fail", "err", err)
	}

	a.metrics.Resume(AuthenticatedViaCookie.String())
	a.log.Debug("auth.resume.ok", "user_id", u.ID, "sid", sidPrefix(f.SID))
	return p, AuthenticatedViaCookie, nil
}

// Login checks credentials and starts a fresh persistent session.
// Nothing is written on failure.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request, name, pass string) (Principal, error) {
	u, err := a.creds.Authenticate(r.Context(), name, pass)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			a.metrics.Login("invalid")
			a.log.Info("auth.login.fail", "reason", "invalid_credentials")
			return Principal{}, ErrInvalidCredentials
		}
		a.metrics.Login("error")
		return Principal{}, fmt.Errorf("authn: authenticate: %w", err)
	}

	p, err := a.start(w, r, u)
	if err != nil {
		a.metrics.Login("error")
		return Principal{}, err
	}
	a.metrics.Login("ok")
	a.log.Info("auth.login.success", "user_id", u.ID, "sid", sidPrefix(p.SID))
	return p, nil
}

// Register creates an account when tan is on the configured list and logs it in.
func (a *Authenticator) Register(w http.ResponseWriter, r *http.Request, name, pass, tan string) (Principal, error) {
	if strings.TrimSpace(name) == "" || pass == "" {
		return Principal{}, ErrInvalidInput
	}
	if !a.cfg.tanValid(tan) {
		a.log.Info("auth.register.fail", "reason", "invalid_tan")
		return Principal{}, ErrInvalidTAN
	}

	u, err := a.creds.Create(r.Context(), name, pass)
	if err != nil {
		return Principal{}, mapIdentityErr("create", err)
	}

	p, err := a.start(w, r, u)
	if err != nil {
		return Principal{}, err
	}
	a.log.Info("auth.register.success", "user_id", u.ID)
	return p, nil
}

// start replaces any session the browser already holds with a new one for u.
func (a *Authenticator) start(w http.ResponseWriter, r *http.Request, u identity.User) (Principal, error) {
	ctx := r.Context()

	if prev := a.cookies.Read(r); prev.IdentityKey != "" && prev.SID != "" {
		if err := a.sessions.DeleteBySession(ctx, prev.IdentityKey, prev.SID); err != nil {
			a.log.Warn("auth.login.previous_delete_fail", "err", err)
		}
	}

	key := a.cfg.KeyMode.keyOf(u)
	iss, err := a.sessions.Create(ctx, a.now(), key)
	if err != nil {
		return Principal{}, fmt.Errorf("authn: create session: %w", err)
	}
	p := Principal{UserID: u.ID, Name: u.Name, IdentityKey: key, SID: iss.SID}

	if err := a.conns.Save(w, r, p.state()); err != nil {
		a.log.Warn("auth.login.connection_save_fail", "err", err)
	}
	if err := a.cookies.Write(w, cookie.Fields{IdentityKey: key, SID: iss.SID, Token: iss.Token}); err != nil {
		_ = a.sessions.DeleteBySession(ctx, key, iss.SID)
		return Principal{}, fmt.Errorf("authn: write cookies: %w", err)
	}
	return p, nil
}

// Logout forgets the connection, clears the cookies and deletes the session row.
// It is idempotent; only a failing row delete is reported.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) error {
	f := a.cookies.Read(r)
	st, _ := a.conns.Load(r)

	key, sid := f.IdentityKey, f.SID
	if key == "" || sid == "" {
		key, sid = st.IdentityKey, st.SID
	}

	if err := a.conns.Destroy(w, r); err != nil {
		a.log.Warn("auth.logout.connection_destroy_fail", "err", err)
	}
	a.cookies.Clear(w)

	if key == "" || sid == "" {
		return nil
	}
	if err := a.sessions.DeleteBySession(r.Context(), key, sid); err != nil {
		return fmt.Errorf("authn: logout: %w", err)
	}
	a.notify(func(n Notifier) { n.SessionRevoked(key, sid, ReasonLogout) })
	a.log.Info("auth.logout.ok", "sid", sidPrefix(sid))
	return nil
}

// Rename changes the caller's name. In name mode the session rows and the
// identity cookie follow the new key; a collision changes nothing.
func (a *Authenticator) Rename(w http.ResponseWriter, r *http.Request, newName string) (Principal, error) {
	p, err := a.caller(w, r)
	if err != nil {
		return Principal{}, err
	}
	ctx := r.Context()

	before, after, err := a.creds.Rename(ctx, p.UserID, newName)
	if err != nil {
		return Principal{}, mapIdentityErr("rename", err)
	}

	// The connection may predate a rename made from another browser.
	oldKey := a.cfg.KeyMode.keyOf(before)
	p.Name = after.Name
	p.IdentityKey = a.cfg.KeyMode.keyOf(after)

	if p.IdentityKey != oldKey {
		moved, err := a.sessions.RenameIdentity(ctx, oldKey, p.IdentityKey)
		if err != nil {
			a.log.Error("auth.rename.cascade_fail", "user_id", p.UserID, "err", err)
			return Principal{}, fmt.Errorf("authn: rename sessions: %w", err)
		}
		if err := a.cookies.Write(w, cookie.Fields{IdentityKey: p.IdentityKey}); err != nil {
			a.log.Error("auth.rename.cookie_write_fail", "err", err)
		}
		a.log.Info("auth.rename.cascade", "user_id", p.UserID, "sessions", moved)
	}
	if err := a.conns.Save(w, r, p.state()); err != nil {
		a.log.Warn("auth.rename.connection_save_fail", "err", err)
	}

	a.notify(func(n Notifier) { n.IdentityRenamed(oldKey, p.IdentityKey, p.Name) })
	a.log.Info("auth.rename.success", "user_id", p.UserID)
	return p, nil
}

// ChangePassword replaces the caller's password. Existing sessions stay valid.
func (a *Authenticator) ChangePassword(w http.ResponseWriter, r *http.Request, oldPass, newPass string) error {
	p, err := a.caller(w, r)
	if err != nil {
		return err
	}
	if err := a.creds.ChangePassword(r.Context(), p.UserID, oldPass, newPass); err != nil {
		return mapIdentityErr("change password", err)
	}
	a.log.Info("auth.password.changed", "user_id", p.UserID)
	return nil
}

// DeleteAccount removes the caller's account and every session of it after
// re-checking the password.
func (a *Authenticator) DeleteAccount(w http.ResponseWriter, r *http.Request, pass string) error {
	p, err := a.caller(w, r)
	if err != nil {
		return err
	}
	ctx := r.Context()

	if err := a.creds.VerifyPassword(ctx, p.UserID, pass); err != nil {
		return mapIdentityErr("verify password", err)
	}
	if p, err = a.current(ctx, p); err != nil {
		return err
	}
	if _, err := a.sessions.DeleteAllForIdentity(ctx, p.IdentityKey); err != nil {
		return fmt.Errorf("authn: delete sessions: %w", err)
	}
	if err := a.creds.Remove(ctx, p.UserID); err != nil && !identity.IsNotFound(err) {
		return fmt.Errorf("authn: remove account: %w", err)
	}

	a.forget(w, r)
	a.notify(func(n Notifier) { n.SessionRevoked(p.IdentityKey, "", ReasonDeleted) })
	a.log.Info("auth.account.deleted", "user_id", p.UserID)
	return nil
}

// LogoutEverywhere deletes every session of the caller, this one included.
func (a *Authenticator) LogoutEverywhere(w http.ResponseWriter, r *http.Request) error {
	p, err := a.caller(w, r)
	if err != nil {
		return err
	}
	if p, err = a.current(r.Context(), p); err != nil {
		return err
	}
	removed, err := a.sessions.DeleteAllForIdentity(r.Context(), p.IdentityKey)
	if err != nil {
		return fmt.Errorf("authn: logout everywhere: %w", err)
	}

	a.forget(w, r)
	a.notify(func(n Notifier) { n.SessionRevoked(p.IdentityKey, "", ReasonLogoutAll) })
	a.log.Info("auth.logout_all.ok", "user_id", p.UserID, "sessions", removed)
	return nil
}

// CheckLogin resumes the request and, when that fails, redirects to the login
// page with the requested path so the user lands back there.
func (a *Authenticator) CheckLogin(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, _, err := a.Resume(w, r)
	if err == nil {
		return p, true
	}
	target := strings.TrimPrefix(r.URL.RequestURI(), "/")
	http.Redirect(w, r, "/login?url="+url.QueryEscape(target), http.StatusSeeOther)
	return Principal{}, false
}

// RequireLogin guards next with CheckLogin and stores the principal in the
// request context.
func (a *Authenticator) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.CheckLogin(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// caller is the principal RequireLogin already resolved, or a fresh Resume
// when the handler is not behind it. Resuming twice would replay the
// pre-rotation token whenever the connection flag failed to persist.
func (a *Authenticator) caller(w http.ResponseWriter, r *http.Request) (Principal, error) {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return p, nil
	}
	p, _, err := a.Resume(w, r)
	if err != nil {
		return Principal{}, ErrNotAuthenticated
	}
	return p, nil
}

// current refreshes name and identity key from the account record.
func (a *Authenticator) current(ctx context.Context, p Principal) (Principal, error) {
	u, err := a.creds.GetByID(ctx, p.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Principal{}, ErrNotAuthenticated
		}
		return Principal{}, fmt.Errorf("authn: load account: %w", err)
	}
	p.Name = u.Name
	p.IdentityKey = a.cfg.KeyMode.keyOf(u)
	return p, nil
}

func (a *Authenticator) forget(w http.ResponseWriter, r *http.Request) {
	if err := a.conns.Destroy(w, r); err != nil {
		a.log.Warn("auth.connection_destroy_fail", "err", err)
	}
	a.cookies.Clear(w)
}

func (a *Authenticator) lookup(ctx context.Context, key string) (identity.User, error) {
	if a.cfg.KeyMode == KeyByName {
		return a.creds.GetByName(ctx, key)
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return identity.User{}, identity.NotFoundError{Op: "authn.lookup", Resource: "user"}
	}
	return a.creds.GetByID(ctx, id)
}

func (a *Authenticator) notify(fn func(Notifier)) {
	if a.notifier != nil {
		fn(a.notifier)
	}
}

func mapIdentityErr(op string, err error) error {
	switch {
	case identity.IsConflict(err):
		return ErrDuplicateIdentity
	case identity.IsInvalidInput(err):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case identity.IsInvalidCredentials(err):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("authn: %s: %w", op, err)
	}
}

func sidPrefix(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
