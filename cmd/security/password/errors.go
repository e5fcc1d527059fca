package password

import "errors"

// Policy failures are reported to users as "invalid input"; ErrInvalidHash
// means a stored digest is in no format Check understands.
var (
	ErrPasswordTooShort = errors.New("password: shorter than policy minimum")
	ErrPasswordTooLong  = errors.New("password: longer than policy maximum")
	ErrWeakPassword     = errors.New("password: on the very-weak blocklist")
	ErrInvalidHash      = errors.New("password: unrecognized stored hash")
)
