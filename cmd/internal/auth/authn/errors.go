package authn

import "errors"

// Outcome kinds. Handlers map them to user-facing reasons.
var (
	// ErrNoSessionCookie: nothing to resume. Normal for anonymous traffic.
	ErrNoSessionCookie = errors.New("authn: no session cookie")

	// ErrCorruptedSessionCookie: cookies verified but the session did not;
	// cookies were cleared and the sid revoked.
	ErrCorruptedSessionCookie = errors.New("authn: corrupted session cookie")

	ErrInvalidCredentials = errors.New("authn: invalid credentials")
	ErrDuplicateIdentity  = errors.New("authn: identity already exists")
	ErrInvalidInput       = errors.New("authn: invalid input")
	ErrInvalidTAN         = errors.New("authn: invalid tan")
	ErrNotAuthenticated   = errors.New("authn: not authenticated")

	// ErrConfig is returned by LoadConfigFromEnv for invalid values.
	ErrConfig = errors.New("authn: invalid configuration")
)
