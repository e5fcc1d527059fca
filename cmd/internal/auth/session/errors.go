package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned when a (key, sid, token) triple does not
	// identify a live session. The caller must treat the client as logged out.
	ErrInvalidSession = errors.New("invalid session")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Reason says why a validation failed. It is for logs and metrics only and
// must never be echoed to clients.
type Reason string

const (
	ReasonMalformed     Reason = "malformed"
	ReasonUnknownSID    Reason = "unknown_sid"
	ReasonTokenMismatch Reason = "token_mismatch"
	ReasonExpired       Reason = "expired"
)

// InvalidSessionError carries the failure reason and how many rows were removed.
type InvalidSessionError struct {
	Reason  Reason
	Revoked int64
}

func (e InvalidSessionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSession, e.Reason)
}

func (e InvalidSessionError) Unwrap() error { return ErrInvalidSession }

// ReasonOf extracts the failure reason from err, or "" when err is not an
// InvalidSessionError.
func ReasonOf(err error) Reason {
	var ie InvalidSessionError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return ""
}

// IsTheft reports whether err signals a stale-token replay for a live sid.
func IsTheft(err error) bool { return ReasonOf(err) == ReasonTokenMismatch }

var errDuplicateSID = errors.New("session: duplicate sid")
