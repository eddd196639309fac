package auth

import "time"

// TokenVerifier verifies a connection token and returns the identity it carries.
// This enables mocking for admission tests without signing real tokens.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// TokenIssuer mints tokens for a user. Used by the dev CLI and by tests.
type TokenIssuer interface {
	Issue(userID string, ttl time.Duration) (string, error)
}

// Ensure Service implements both interfaces
var (
	_ TokenVerifier = (*Service)(nil)
	_ TokenIssuer   = (*Service)(nil)
)
