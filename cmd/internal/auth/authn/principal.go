package authn

import (
	"context"

	"binhacken/cmd/internal/auth/websession"
)

// State is how the current request got authenticated.
type State int

const (
	Unauthenticated State = iota
	AuthenticatedThisConnection
	AuthenticatedViaCookie
)

func (s State) String() string {
	switch s {
	case AuthenticatedThisConnection:
		return "connection"
	case AuthenticatedViaCookie:
		return "cookie"
	default:
		return "unauthenticated"
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID      int64
	Name        string
	IdentityKey string
	SID         string
}

func (p Principal) state() websession.State {
	return websession.State{
		LoggedIn:    true,
		IdentityKey: p.IdentityKey,
		UserID:      p.UserID,
		Name:        p.Name,
		SID:         p.SID,
	}
}

func principalOf(st websession.State) Principal {
	return Principal{UserID: st.UserID, Name: st.Name, IdentityKey: st.IdentityKey, SID: st.SID}
}

type principalKey struct{}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by RequireLogin.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
