// Package websession keeps the short-lived per-browser "authenticated" flag.
//
// The flag lives server-side under a random connection id carried in the
// binhacken.conn cookie. It only short-circuits resume on subsequent requests;
// it is never a source of truth and losing it just means the next request
// goes through the persistent session cookies again.
package websession

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CookieName is the connection cookie.
const CookieName = "binhacken.conn"

// DefaultTTL is the idle lifetime of a connection state.
const DefaultTTL = 24 * time.Hour

// State is the per-connection authentication cache.
type State struct {
	LoggedIn    bool   `json:"logged_in"`
	IdentityKey string `json:"identity_key,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	Name        string `json:"name,omitempty"`
	SID         string `json:"sid,omitempty"`
}

// ErrNotFound is returned by stores for unknown or expired ids.
var ErrNotFound = errors.New("websession: not found")

// Store persists connection states.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Put(ctx context.Context, id string, st State, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Manager binds a Store to the connection cookie.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
	domain string
}

// NewManager returns a Manager. ttl <= 0 selects DefaultTTL.
func NewManager(store Store, ttl time.Duration, secure bool, domain string) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, secure: secure, domain: domain}
}

// Load returns the state bound to the request, or the zero State.
// Store errors are returned so callers can log them; the zero State is still usable.
func (m *Manager) Load(r *http.Request) (State, error) {
	id := connID(r)
	if id == "" {
		return State{}, nil
	}
	st, err := m.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return State{}, nil
	}
	return st, err
}

// Save stores st for the request's connection, minting a connection id if needed.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, st State) error {
	id := connID(r)
	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return err
		}
	}
	if err := m.store.Put(r.Context(), id, st, m.ttl); err != nil {
		return fmt.Errorf("websession: put: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		Domain:   m.domain,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later handlers in the same request must see the same id.
	setRequestCookie(r, id)
	return nil
}

// Destroy deletes the connection state and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	id := connID(r)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if id == "" {
		return nil
	}
	return m.store.Delete(r.Context(), id)
}

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }

func connID(r *http.Request) string {
	ck, err := r.Cookie(CookieName)
	if err != nil || len(ck.Value) != encodedIDLen {
		return ""
	}
	return ck.Value
}

func setRequestCookie(r *http.Request, id string) {
	if connID(r) == id {
		return
	}
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != CookieName {
			r.AddCookie(c)
		}
	}
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
}

const idBytes = 32

var encodedIDLen = base64.RawURLEncoding.EncodedLen(idBytes)

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("websession: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
