// Package identity owns user accounts and their credentials.
//
// Service is the credential boundary used by the session layer: it verifies a
// name/password pair, creates accounts, renames them and changes or upgrades
// password hashes. Persistence sits behind Repository, with a PostgreSQL
// implementation for deployments and an in-memory one for dev and tests.
//
// Errors carry a stable sentinel Kind (see kinds.go) so callers map them with
// errors.Is and never need to inspect storage-specific errors.
package identity
