// Package notify pushes session lifecycle events to open browser tabs.
//
// Every authenticated tab may hold one WebSocket on /ws/session. When the
// persistent session behind it is revoked (logout, logout everywhere, token
// replay) or the account is renamed, the hub fans the event out to the
// matching sockets. Delivery is best effort: queues are bounded and a slow
// tab simply misses events.
package notify

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Version is the event contract version carried in every frame.
const Version = 1

// Subprotocol must be offered by clients during the handshake.
const Subprotocol = "binhacken.session.v1"

// Event types.
const (
	TypeHello   = "session.hello"
	TypeRevoked = "session.revoked"
	TypeTheft   = "session.theft_suspected"
	TypeRenamed = "identity.renamed"
	TypePong    = "pong"
	TypeError   = "error"
)

// Reasons carried by revocation events.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
	ReasonDeleted   = "account_deleted"
	ReasonTheft     = "theft"
)

// Event is one server to client frame.
type Event struct {
	V      int       `json:"v"`
	Type   string    `json:"type"`
	ID     string    `json:"id"`
	TS     time.Time `json:"ts"`
	Reason string    `json:"reason,omitempty"`
	Name   string    `json:"name,omitempty"`
	Code   string    `json:"code,omitempty"`

	// sid restricts delivery to sockets opened under that session.
	sid string
}

// NewEvent stamps an event with a fresh ULID and the given time.
func NewEvent(typ string, now time.Time) Event {
	now = now.UTC()
	return Event{
		V:    Version,
		Type: typ,
		ID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TS:   now,
	}
}

// Final reports whether the socket is closed after the event is written.
func (e Event) Final() bool {
	return e.Type == TypeRevoked || e.Type == TypeTheft
}

// Inbound is the only client to server frame shape.
type Inbound struct {
	Type string `json:"type"`
}
