package session

import (
	"context"
	"time"
)

// Row mirrors a sessions table row.
type Row struct {
	ID          string
	IdentityKey string
	SID         string
	TokenHash   string
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// RotateInput describes one validate-and-rotate attempt.
type RotateInput struct {
	Now          time.Time
	IdentityKey  string
	SID          string
	TokenHash    string
	NewTokenHash string
	// CreatedCutoff: rows created before it are expired, however recently used.
	CreatedCutoff time.Time
}

// RotateOutcome is the decision a Store took under its per-sid lock.
type RotateOutcome int

const (
	// Rotated: the row matched and now holds NewTokenHash.
	Rotated RotateOutcome = iota
	// UnknownSID: no row has this sid; nothing changed.
	UnknownSID
	// Mismatch: identity key or token did not match; all rows for the sid were deleted.
	Mismatch
	// Expired: the row was created before the cutoff and was deleted.
	Expired
)

func (o RotateOutcome) String() string {
	switch o {
	case Rotated:
		return "rotated"
	case UnknownSID:
		return "unknown_sid"
	case Mismatch:
		return "token_mismatch"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Store abstracts persistence for session rows.
//
// Rotate must run the whole decision (lookup, compare, update or delete) as one
// atomic unit per sid: two concurrent Rotate calls with the same token must not
// both observe Rotated.
type Store interface {
	Insert(ctx context.Context, row Row) error
	Rotate(ctx context.Context, in RotateInput) (RotateOutcome, int64, error)
	DeleteBySession(ctx context.Context, identityKey, sid string) (int64, error)
	DeleteAllForIdentity(ctx context.Context, identityKey string) (int64, error)
	RenameIdentity(ctx context.Context, oldKey, newKey string) (int64, error)
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListByIdentity(ctx context.Context, identityKey string) ([]Row, error)
	Close()
}
