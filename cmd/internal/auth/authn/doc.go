// Package authn is the request-level session authenticator.
//
// It combines three layers:
//
//   - the connection state (websession): a cached "logged in" flag for the
//     current browser connection, checked first and never trusted beyond it;
//   - the persistent cookie triple (cookie): identity key, sid and token,
//     each signed and expiring;
//   - the session table (session): one row per remember-me grant whose token
//     rotates on every successful resume.
//
// Resume walks these layers in that order. Login, Register, Logout, Rename and
// the account operations keep all three consistent and tell connected tabs
// through an optional Notifier when a session goes away.
package authn
