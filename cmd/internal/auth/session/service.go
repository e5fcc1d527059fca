package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"binhacken/cmd/internal/metrics"
	"binhacken/cmd/security/token"
)

// Service implements the session table operations on top of a Store.
//
// It generates sids and tokens, hashes tokens before they reach the Store and
// turns Store outcomes into InvalidSessionError values.
type Service struct {
	cfg     Config
	store   Store
	hasher  token.Hasher
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Issued is the result of Create. Token is shown to the client once and never stored.
type Issued struct {
	SID   string
	Token string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records validation, revocation and purge counts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHasher sets the token hasher (default: plain SHA-256).
func WithHasher(h token.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, opts ...Option) *Service {
	s := &Service{cfg: cfg, store: store, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cfg.MaxAge <= 0 {
		s.cfg.MaxAge = DefaultMaxAge
	}
	return s
}

// MaxAge returns the configured session lifetime.
func (s *Service) MaxAge() time.Duration { return s.cfg.MaxAge }

// Create inserts a new session for identityKey and returns its sid and first token.
func (s *Service) Create(ctx context.Context, now time.Time, identityKey string) (Issued, error) {
	if strings.TrimSpace(identityKey) == "" {
		return Issued{}, fmt.Errorf("session: empty identity key")
	}

	sid, err := token.NewOpaque()
	if err != nil {
		return Issued{}, err
	}
	tok, err := token.NewOpaque()
	if err != nil {
		return Issued{}, err
	}

	row := Row{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		IdentityKey: identityKey,
		SID:         sid,
		TokenHash:   s.hasher.Hash(tok),
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := s.store.Insert(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("session: insert: %w", err)
	}

	s.metrics.SessionCreated()
	s.log.Debug("session.create.ok", "sid", sidPrefix(sid))
	return Issued{SID: sid, Token: tok}, nil
}

// Validate checks the triple and, on success, rotates the token and returns the new one.
//
// On any mismatch for an existing sid all rows for that sid are deleted before
// the error is returned. A Store failure is returned as-is; the caller must
// treat the session as invalid since the rotation did not commit.
func (s *Service) Validate(ctx context.Context, now time.Time, identityKey, sid, tok string) (string, error) {
	if identityKey == "" || !token.LooksOpaque(sid) || !token.LooksOpaque(tok) {
		s.metrics.SessionValidated(string(ReasonMalformed), 0)
		return "", InvalidSessionError{Reason: ReasonMalformed}
	}

	next, err := token.NewOpaque()
	if err != nil {
		return "", err
	}

	start := time.Now()
	outcome, removed, err := s.store.Rotate(ctx, RotateInput{
		Now:           now,
		IdentityKey:   identityKey,
		SID:           sid,
		TokenHash:     s.hasher.Hash(tok),
		NewTokenHash:  s.hasher.Hash(next),
		CreatedCutoff: now.Add(-s.cfg.MaxAge),
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.metrics.SessionValidated("error", elapsed)
		return "", fmt.Errorf("session: rotate: %w", err)
	}
	s.metrics.SessionValidated(outcome.String(), elapsed)

	switch outcome {
	case Rotated:
		return next, nil
	case Mismatch:
		s.metrics.SessionsRevoked("theft", removed)
		s.log.Warn("session.validate.revoked",
			"sid", sidPrefix(sid),
			"reason", string(ReasonTokenMismatch),
			"rows", removed,
		)
		return "", InvalidSessionError{Reason: ReasonTokenMismatch, Revoked: removed}
	case Expired:
		s.metrics.SessionsRevoked("expired", removed)
		return "", InvalidSessionError{Reason: ReasonExpired, Revoked: removed}
	default:
		return "", InvalidSessionError{Reason: ReasonUnknownSID}
	}
}

// DeleteBySession removes the session (identityKey, sid). Missing rows are not an error.
func (s *Service) DeleteBySession(ctx context.Context, identityKey, sid string) error {
	if identityKey == "" || sid == "" {
		return nil
	}
	n, err := s.store.DeleteBySession(ctx, identityKey, sid)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	s.metrics.SessionsRevoked("logout", n)
	return nil
}

// DeleteAllForIdentity removes every session of identityKey.
func (s *Service) DeleteAllForIdentity(ctx context.Context, identityKey string) (int64, error) {
	if identityKey == "" {
		return 0, nil
	}
	n, err := s.store.DeleteAllForIdentity(ctx, identityKey)
	if err != nil {
		return 0, fmt.Errorf("session: delete all: %w", err)
	}
	s.metrics.SessionsRevoked("logout_all", n)
	return n, nil
}

// RenameIdentity moves all sessions from oldKey to newKey.
func (s *Service) RenameIdentity(ctx context.Context, oldKey, newKey string) (int64, error) {
	if oldKey == "" || newKey == "" {
		return 0, errors.New("session: empty identity key")
	}
	if oldKey == newKey {
		return 0, nil
	}
	n, err := s.store.RenameIdentity(ctx, oldKey, newKey)
	if err != nil {
		return 0, fmt.Errorf("session: rename: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes sessions created more than maxAge ago (the configured
// MaxAge when maxAge <= 0), regardless of use. It is idempotent.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = s.cfg.MaxAge
	}
	n, err := s.store.PurgeCreatedBefore(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	s.metrics.SessionsPurged(n)
	return n, nil
}

// List returns the sessions of identityKey, newest first. Token hashes are blanked.
func (s *Service) List(ctx context.Context, identityKey string) ([]Row, error) {
	rows, err := s.store.ListByIdentity(ctx, identityKey)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	for i := range rows {
		rows[i].TokenHash = ""
	}
	return rows, nil
}

// Close releases the store.
func (s *Service) Close() { s.store.Close() }

// sidPrefix is the only form of a sid that may appear in logs.
func sidPrefix(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
