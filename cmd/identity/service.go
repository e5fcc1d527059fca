package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"binhacken/cmd/security/password"
)

// Service verifies and manages account credentials.
type Service struct {
	repo  Repository
	pw    password.Config
	log   *slog.Logger
	now   func() time.Time
	dummy string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service over repo.
func NewService(repo Repository, pw password.Config, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("identity: nil repository")
	}
	s := &Service{
		repo: repo,
		pw:   pw,
		log:  slog.Default(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	// Unknown names still pay for one Argon2id verification.
	dummy, err := pw.Rehash("binhacken-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	s.dummy = dummy
	return s, nil
}

// Authenticate returns the user when name and password match.
// Unknown names and wrong passwords both yield ErrInvalidCredentials.
// A matching legacy hash is upgraded in place; failure to upgrade is logged only.
func (s *Service) Authenticate(ctx context.Context, name, pass string) (User, error) {
	const op = "identity.Authenticate"

	rec, err := s.repo.GetByNameNorm(ctx, NormalizeName(name))
	if err != nil {
		if IsNotFound(err) {
			_, _ = s.pw.Check(s.dummy, pass)
			return User{}, badCredentials(op)
		}
		return User{}, err
	}

	res, err := s.pw.Check(rec.PasswordHash, pass)
	if err != nil {
		s.log.Warn("identity.authenticate.unusable_hash",
			"user_id", rec.ID,
			"scheme", password.Identify(rec.PasswordHash).String(),
		)
		return User{}, badCredentials(op)
	}
	if !res.Match {
		return User{}, badCredentials(op)
	}

	if res.NeedsRehash {
		s.upgradeHash(ctx, rec, pass)
	}
	return rec.User, nil
}

func (s *Service) upgradeHash(ctx context.Context, rec Record, pass string) {
	h, err := s.pw.Rehash(pass)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, rec.ID, h, s.now())
	}
	if err != nil {
		s.log.Warn("identity.rehash.fail", "user_id", rec.ID, "err", err)
		return
	}
	s.log.Info("identity.rehash.ok",
		"user_id", rec.ID,
		"from", password.Identify(rec.PasswordHash).String(),
	)
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, name, pass string) (User, error) {
	const op = "identity.Create"

	display, norm, ok := CleanName(name)
	if !ok {
		return User{}, invalidInput(op, fmt.Sprintf("name must be 1..%d printable characters", MaxNameLength))
	}
	h, err := s.pw.Hash(pass)
	if err != nil {
		return User{}, invalidInput(op, err.Error())
	}
	return s.repo.Insert(ctx, NewUser{
		Name:         display,
		NameNorm:     norm,
		PasswordHash: h,
		Now:          s.now(),
	})
}

// Rename changes a user's name and returns the user before and after.
func (s *Service) Rename(ctx context.Context, id int64, newName string) (before, after User, err error) {
	const op = "identity.Rename"

	display, norm, ok := CleanName(newName)
	if !ok {
		return User{}, User{}, invalidInput(op, fmt.Sprintf("name must be 1..%d printable characters", MaxNameLength))
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, User{}, err
	}
	after, err = s.repo.UpdateName(ctx, id, display, norm, s.now())
	if err != nil {
		return User{}, User{}, err
	}
	return rec.User, after, nil
}

// VerifyPassword checks pass against the stored hash of user id.
func (s *Service) VerifyPassword(ctx context.Context, id int64, pass string) error {
	const op = "identity.VerifyPassword"

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.pw.Check(rec.PasswordHash, pass)
	if err != nil || !res.Match {
		return badCredentials(op)
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPass, newPass string) error {
	const op = "identity.ChangePassword"

	if err := s.VerifyPassword(ctx, id, oldPass); err != nil {
		return err
	}
	h, err := s.pw.Hash(newPass)
	if err != nil {
		return invalidInput(op, err.Error())
	}
	return s.repo.UpdatePasswordHash(ctx, id, h, s.now())
}

// Remove deletes the account. Sessions are the caller's concern.
func (s *Service) Remove(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// GetByID returns the user with the given id.
func (s *Service) GetByID(ctx context.Context, id int64) (User, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return rec.User, nil
}

// GetByName returns the user with the given name (case-insensitive).
func (s *Service) GetByName(ctx context.Context, name string) (User, error) {
	rec, err := s.repo.GetByNameNorm(ctx, NormalizeName(name))
	if err != nil {
		return User{}, err
	}
	return rec.User, nil
}

// Close releases the repository.
func (s *Service) Close() { s.repo.Close() }
