package identity

import (
	"context"
	"time"
)

// User is an account as seen by the rest of the system.
// The password hash never leaves this package.
type User struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record is a stored user together with its password hash.
type Record struct {
	User
	NameNorm     string
	PasswordHash string
}

// NewUser is the input to Repository.Insert.
type NewUser struct {
	Name         string
	NameNorm     string
	PasswordHash string
	Now          time.Time
}

// Repository is the persistence boundary for accounts.
//
// Contract:
// - Insert and UpdateName return ConflictError{Field: "name"} when NameNorm is taken by another user.
// - Lookups and mutations of a missing user return NotFoundError.
// - Implementations must be safe for concurrent use.
type Repository interface {
	Insert(ctx context.Context, in NewUser) (User, error)
	GetByID(ctx context.Context, id int64) (Record, error)
	GetByNameNorm(ctx context.Context, norm string) (Record, error)
	UpdateName(ctx context.Context, id int64, name, norm string, now time.Time) (User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error
	Delete(ctx context.Context, id int64) error
	Close()
}
