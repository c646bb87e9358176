package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when an identifier/password pair does
	// not match. It never says which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized covers a missing token, a session that was logged out and
	// any identity that can no longer be resolved.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken is returned for malformed, tampered or wrong-kind tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuseDetected is returned when a refresh token that has already
	// been rotated away is presented again.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrNotFound is returned by credential stores when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrWeakPassword is returned when a new password does not meet the minimum length.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

// IsUnauthorized reports whether err belongs to the token failure class that
// clients only ever see as a generic 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenReuseDetected)
}
