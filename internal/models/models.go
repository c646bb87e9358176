package models

import "time"

// User is the stored account record. PasswordHash and RefreshToken never leave
// the process; use Public to obtain the redacted view.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar,omitempty"`
	CoverImage   string    `json:"coverImage,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is a User with credential material removed.
type PublicUser struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar,omitempty"`
	CoverImage string    `json:"coverImage,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Public returns the redacted view of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Summary returns the public card used in subscription listings.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, Avatar: u.Avatar}
}

// HasSession reports whether a refresh token is currently stored.
func (u User) HasSession() bool {
	return u.RefreshToken != ""
}

type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

// SubscriptionEntry is one row of a subscription listing. User is the other
// side of the relation: the channel when listing a viewer's subscriptions,
// the subscriber when listing a channel's audience.
type SubscriptionEntry struct {
	Subscription
	User UserSummary `json:"user"`
}

// ChannelProfile is the public channel page for a user. IsSubscribed is only
// ever true for an identified viewer.
type ChannelProfile struct {
	PublicUser
	SubscribersCount     int  `json:"subscribersCount"`
	ChannelsSubscribedTo int  `json:"channelsSubscribedToCount"`
	IsSubscribed         bool `json:"isSubscribed"`
}
