// Package cookie reads and writes the persistent session cookie triple.
//
// Each of the three cookies carries one field as a compact HS256 JWS whose
// claims bind the value to its cookie (fld) and give it a sliding expiry.
// A value that fails verification, has expired or belongs to another field is
// reported as absent; the codec never returns partially trusted data.
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names. The identity cookie name depends on the identity key mode.
const (
	NameUserID   = "session.userId"
	NameUsername = "session.username"
	NameSID      = "session.sid"
	NameToken    = "session.token"
)

// MinSecretBytes is the minimum signing key size.
const MinSecretBytes = 32

// DefaultMaxAge is the sliding lifetime of every session cookie.
const DefaultMaxAge = 30 * 24 * time.Hour

// Fields is the decoded cookie triple. An empty string means absent.
type Fields struct {
	IdentityKey string
	SID         string
	Token       string
}

// Complete reports whether all three fields are present.
func (f Fields) Complete() bool {
	return f.IdentityKey != "" && f.SID != "" && f.Token != ""
}

// Empty reports whether no field is present.
func (f Fields) Empty() bool {
	return f.IdentityKey == "" && f.SID == "" && f.Token == ""
}

// Config configures a Codec.
type Config struct {
	Secret []byte
	// IdentityCookie is NameUserID or NameUsername.
	IdentityCookie string
	MaxAge         time.Duration
	Secure         bool
	Domain         string
	Path           string
}

// Codec signs, verifies and clears the session cookies.
type Codec struct {
	cfg Config
	now func() time.Time
}

type claims struct {
	Field string `json:"fld"`
	jwt.RegisteredClaims
}

// ErrSecret is returned by New for a missing or short signing key.
var ErrSecret = errors.New("cookie: signing secret must be at least 32 bytes")

// New validates cfg and returns a Codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, ErrSecret
	}
	switch cfg.IdentityCookie {
	case "":
		cfg.IdentityCookie = NameUserID
	case NameUserID, NameUsername:
	default:
		return nil, fmt.Errorf("cookie: unsupported identity cookie %q", cfg.IdentityCookie)
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Codec{cfg: cfg, now: time.Now}, nil
}

// IdentityCookie returns the name of the identity cookie in use.
func (c *Codec) IdentityCookie() string { return c.cfg.IdentityCookie }

// Read decodes whatever valid fields the request carries.
func (c *Codec) Read(r *http.Request) Fields {
	return Fields{
		IdentityKey: c.readOne(r, c.cfg.IdentityCookie),
		SID:         c.readOne(r, NameSID),
		Token:       c.readOne(r, NameToken),
	}
}

// Write sets every non-empty field with a fresh expiry.
func (c *Codec) Write(w http.ResponseWriter, f Fields) error {
	for _, kv := range [...][2]string{
		{c.cfg.IdentityCookie, f.IdentityKey},
		{NameSID, f.SID},
		{NameToken, f.Token},
	} {
		if kv[1] == "" {
			continue
		}
		v, err := c.sign(kv[0], kv[1])
		if err != nil {
			return err
		}
		http.SetCookie(w, c.cookie(kv[0], v, int(c.cfg.MaxAge/time.Second)))
	}
	return nil
}

// Clear expires all three cookies (Max-Age=0).
func (c *Codec) Clear(w http.ResponseWriter) {
	for _, name := range [...]string{c.cfg.IdentityCookie, NameSID, NameToken} {
		http.SetCookie(w, c.cookie(name, "", -1))
	}
}

func (c *Codec) cookie(name, value string, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.Expires = c.now().Add(time.Duration(maxAge) * time.Second).UTC()
	}
	return ck
}

func (c *Codec) sign(field, value string) (string, error) {
	now := c.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Field: field,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   value,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.MaxAge)),
		},
	})
	s, err := t.SignedString(c.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("cookie: sign %s: %w", field, err)
	}
	return s, nil
}

func (c *Codec) readOne(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil || ck.Value == "" || len(ck.Value) > 1024 {
		return ""
	}

	var cl claims
	tok, err := jwt.ParseWithClaims(ck.Value, &cl,
		func(*jwt.Token) (any, error) { return c.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !tok.Valid || cl.Field != name {
		return ""
	}
	return cl.Subject
}
