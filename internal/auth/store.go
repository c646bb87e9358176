package auth

import (
	"context"

	"videobox/internal/models"
)

// CredentialStore is the persistence contract the session manager relies on.
// Refresh token values passed in and out are digests from HashRefreshToken.
type CredentialStore interface {
	// FindByID returns ErrNotFound when no user has the id.
	FindByID(ctx context.Context, id string) (models.User, error)
	// FindByIdentifier matches a username or an email address.
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	// SetRefreshToken overwrites the stored value; an empty value clears it.
	SetRefreshToken(ctx context.Context, id, token string) error
	// SwapRefreshToken replaces presented with next in one conditional update.
	// It fails with ErrUnauthorized when nothing is stored, with
	// ErrTokenReuseDetected when a different value is stored, and with
	// ErrNotFound when the user is gone.
	SwapRefreshToken(ctx context.Context, id, presented, next string) error
	// SetPasswordHash replaces the hash and optionally clears the refresh token
	// in the same update.
	SetPasswordHash(ctx context.Context, id, hash string, clearRefreshToken bool) error
}
