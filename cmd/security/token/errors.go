package token

import "errors"

// Returned by HMACKeyFromEnv and HasherFromEnv.
var (
	ErrHMACKeyMissing  = errors.New("token: " + HMACEnvKey + " is not set")
	ErrHMACKeyTooShort = errors.New("token: " + HMACEnvKey + " is shorter than the minimum")
)
