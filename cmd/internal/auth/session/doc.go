// Package session implements the persistent "remember me" session table.
//
// A session is a row keyed by a random sid, owned by an identity key, holding
// the hash of the current rotating token. Every successful validation replaces
// the token, so a copied cookie stops working as soon as its owner or the thief
// uses it once. Presenting a stale token for a live sid is treated as theft and
// removes every row for that sid.
//
// Tokens are hashed before storage (HMAC-SHA256 when BINHACKEN_TOKEN_HMAC_KEY
// is set, SHA-256 otherwise). Transport and cookies live elsewhere.
package session
