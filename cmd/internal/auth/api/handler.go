// Package api maps the session authenticator onto HTTP routes.
//
// Form endpoints answer with 303 redirects carrying a human-readable reason
// in ?nope= (login/register pages) or ?res= (profile page); rendering those
// pages is someone else's job. /me and /home return JSON.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"binhacken/cmd/internal/auth/authn"
)

// User-facing reasons.
const (
	msgAccessDenied   = "Access denied :("
	msgTooMany        = "Too many attempts, try again later"
	msgWrongTAN       = "Wrong TAN"
	msgNameTaken      = "Username already taken"
	msgInvalidInput   = "Invalid username or password"
	msgWrongPassword  = "Wrong password"
	msgPasswordChange = "Password changed"
	msgBadPassword    = "New password not accepted"
	msgBadName        = "Invalid username"
	msgServerError    = "Something went wrong, please try again"
)

// Handler wires HTTP routes to the Authenticator.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	auth     *authn.Authenticator
	throttle Throttle
	auditor  Auditor
}

// HandlerOption configures optional dependencies.
type HandlerOption func(*Handler)

func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithThrottle overrides the in-memory login throttle.
func WithThrottle(t Throttle) HandlerOption {
	return func(h *Handler) {
		if t != nil {
			h.throttle = t
		}
	}
}

// WithAuditor overrides the log-only auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.auditor = a
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(auth *authn.Authenticator, cfg Config, opts ...HandlerOption) *Handler {
	d := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.LoginMaxFailures <= 0 {
		cfg.LoginMaxFailures = d.LoginMaxFailures
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = d.LoginWindow
	}

	h := &Handler{log: slog.Default(), cfg: cfg, auth: auth}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.throttle == nil {
		h.throttle = NewMemoryThrottle(cfg.LoginMaxFailures, cfg.LoginWindow)
	}
	if h.auditor == nil {
		h.auditor = LogAuditor{Log: h.log}
	}
	return h
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	guard := h.auth.RequireLogin

	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("GET /auth/logout", h.handleLogout)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("POST /auth/logout_all", guard(http.HandlerFunc(h.handleLogoutAll)))

	mux.Handle("POST /profile/name", guard(http.HandlerFunc(h.handleRename)))
	mux.Handle("POST /profile/password", guard(http.HandlerFunc(h.handlePassword)))
	mux.Handle("POST /profile/delete", guard(http.HandlerFunc(h.handleDelete)))

	mux.Handle("GET /me", guard(http.HandlerFunc(h.handleMe)))
	mux.Handle("GET /home", guard(http.HandlerFunc(h.handleHome)))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	name, pass := f["username"], f["password"]
	next := safeNext(f["url"])

	nope := func(reason string) {
		redirect(w, r, "/login", url.Values{"nope": {reason}, "url": {next}})
	}

	ctx := r.Context()
	keys := throttleKeys(ipString(clientIP(r, h.cfg.TrustProxy)), name)
	if blocked, err := h.throttle.Blocked(ctx, keys...); err != nil {
		h.log.Error("auth.login.throttle.fail", "err", err)
	} else if blocked {
		h.audit(r, "auth.login.rate_limited", 0, "", nil)
		nope(msgTooMany)
		return
	}

	p, err := h.auth.Login(w, r, name, pass)
	switch {
	case err == nil:
		if err := h.throttle.Reset(ctx, keys...); err != nil {
			h.log.Warn("auth.login.throttle_reset.fail", "err", err)
		}
		h.audit(r, "auth.login.success", p.UserID, p.SID, nil)
		http.Redirect(w, r, "/"+next, http.StatusSeeOther)
	case errors.Is(err, authn.ErrInvalidCredentials):
		if err := h.throttle.Fail(ctx, keys...); err != nil {
			h.log.Warn("auth.login.throttle_fail.fail", "err", err)
		}
		h.audit(r, "auth.login.failed", 0, "", nil)
		nope(msgAccessDenied)
	default:
		h.log.Error("auth.login.error", "err", err)
		nope(msgServerError)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	nope := func(reason string) {
		redirect(w, r, "/register", url.Values{"nope": {reason}})
	}

	ctx := r.Context()
	keys := throttleKeys(ipString(clientIP(r, h.cfg.TrustProxy)), "")
	if blocked, err := h.throttle.Blocked(ctx, keys...); err != nil {
		h.log.Error("auth.register.throttle.fail", "err", err)
	} else if blocked {
		nope(msgTooMany)
		return
	}

	p, err := h.auth.Register(w, r, f["username"], f["password"], f["tan"])
	switch {
	case err == nil:
		h.audit(r, "auth.register.success", p.UserID, p.SID, nil)
		http.Redirect(w, r, "/"+defaultLanding, http.StatusSeeOther)
	case errors.Is(err, authn.ErrInvalidTAN):
		_ = h.throttle.Fail(ctx, keys...)
		h.audit(r, "auth.register.invalid_tan", 0, "", nil)
		nope(msgWrongTAN)
	case errors.Is(err, authn.ErrDuplicateIdentity):
		nope(msgNameTaken)
	case errors.Is(err, authn.ErrInvalidInput):
		nope(msgInvalidInput)
	default:
		h.log.Error("auth.register.error", "err", err)
		nope(msgServerError)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(w, r); err != nil {
		h.log.Error("auth.logout.error", "err", err)
	}
	redirect(w, r, "/login", nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.PrincipalFrom(r.Context())
	if err := h.auth.LogoutEverywhere(w, r); err != nil {
		h.log.Error("auth.logout_all.error", "err", err)
		redirect(w, r, "/profile", url.Values{"res": {msgServerError}})
		return
	}
	h.audit(r, "auth.logout_all", p.UserID, "", nil)
	redirect(w, r, "/login", nil)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	p, err := h.auth.Rename(w, r, f["username"])
	var res string
	switch {
	case err == nil:
		h.audit(r, "identity.renamed", p.UserID, "", nil)
		res = "Username changed to " + p.Name
	case errors.Is(err, authn.ErrDuplicateIdentity):
		res = msgNameTaken
	case errors.Is(err, authn.ErrInvalidInput):
		res = msgBadName
	case errors.Is(err, authn.ErrNotAuthenticated):
		h.toLogin(w, r)
		return
	default:
		h.log.Error("auth.rename.error", "err", err)
		res = msgServerError
	}
	redirect(w, r, "/profile", url.Values{"res": {res}})
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	err = h.auth.ChangePassword(w, r, f["password_old"], f["password_new"])
	var res string
	switch {
	case err == nil:
		p, _ := authn.PrincipalFrom(r.Context())
		h.audit(r, "identity.password_changed", p.UserID, "", nil)
		res = msgPasswordChange
	case errors.Is(err, authn.ErrInvalidCredentials):
		res = msgWrongPassword
	case errors.Is(err, authn.ErrInvalidInput):
		res = msgBadPassword
	case errors.Is(err, authn.ErrNotAuthenticated):
		h.toLogin(w, r)
		return
	default:
		h.log.Error("auth.password.error", "err", err)
		res = msgServerError
	}
	redirect(w, r, "/profile", url.Values{"res": {res}})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	p, _ := authn.PrincipalFrom(r.Context())
	err = h.auth.DeleteAccount(w, r, f["password"])
	switch {
	case err == nil:
		h.audit(r, "identity.deleted", p.UserID, "", nil)
		redirect(w, r, "/login", nil)
	case errors.Is(err, authn.ErrInvalidCredentials):
		redirect(w, r, "/profile", url.Values{"res": {msgWrongPassword}})
	case errors.Is(err, authn.ErrNotAuthenticated):
		h.toLogin(w, r)
	default:
		h.log.Error("auth.delete.error", "err", err)
		redirect(w, r, "/profile", url.Values{"res": {msgServerError}})
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: userResponse{ID: p.UserID, Name: p.Name}})
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, homeResponse{
		Message: "Hello, " + p.Name,
		User:    userResponse{ID: p.UserID, Name: p.Name},
	})
}

func (h *Handler) toLogin(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, "/login", url.Values{"url": {strings.TrimPrefix(r.URL.Path, "/")}})
}
