package auth

import "errors"

// Sentinel errors returned by token issuers.
// Callers should use errors.Is for comparison.
var (
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not verify with the configured secret.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrMissingSecret is returned at construction when the HMAC secret
	// is empty. Tokens signed with an empty secret would be forgeable.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)
