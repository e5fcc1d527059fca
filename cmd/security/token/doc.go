// Package token provides the opaque-secret primitives used by session storage.
//
// It is the single source of truth for how session ids and rotating session
// tokens are generated and how tokens are hashed before they touch storage.
//
// Design goals:
// - Opaque values are 16 random bytes, lower-case hex (32 chars).
// - Stored digests are a stable 64-char hex string suitable for constant-time comparison.
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production mode: HMAC-SHA256(token, key), enforced when RequireHMAC is set.
//
// Environment:
// - BINHACKEN_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
