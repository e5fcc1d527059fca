// Package password hashes and verifies account passwords.
//
// New hashes are always Argon2id in the PHC-like form
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
//
// Verification additionally understands two legacy digest families so that
// accounts created by older deployments keep working:
// - bare lower-case SHA-256 hex (unsalted)
// - bcrypt ($2a$, $2b$, $2y$)
//
// A successful legacy verification reports NeedsRehash so callers can upgrade
// the stored hash on the next login.
//
// Hash strings are treated as untrusted input; Argon2id parameters far above the
// configured ones are refused to bound CPU and memory use.
package password
