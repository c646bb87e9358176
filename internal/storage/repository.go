package storage

import (
	"context"

	"videobox/internal/auth"
	"videobox/internal/models"
)

// Repository exposes the datastore operations required by the session
// manager and the API handlers.
type Repository interface {
	auth.CredentialStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) (models.User, error)
	// SetUserImage stores url on the selected field and returns the updated
	// user together with the URL it replaced.
	SetUserImage(ctx context.Context, id string, field ImageField, url string) (models.User, string, error)

	GetChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
	Subscribe(ctx context.Context, subscriberID, channelID string) (models.Subscription, error)
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	// ListSubscriptions returns the channels subscriberID follows, oldest first.
	ListSubscriptions(ctx context.Context, subscriberID string) ([]models.SubscriptionEntry, error)
	// ListSubscribers returns the users following channelID, oldest first.
	ListSubscribers(ctx context.Context, channelID string) ([]models.SubscriptionEntry, error)
}
