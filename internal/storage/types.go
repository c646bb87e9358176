package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidInput is matched by every ValidationError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when a unique username, email or subscription
	// already exists.
	ErrConflict             = errors.New("already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// ValidationError lists every problem found with a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(problems ...string) error {
	return &ValidationError{Problems: problems}
}

// CreateUserParams captures the fields required to register an account.
type CreateUserParams struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     string
	CoverImage string
}

// AccountUpdate carries optional profile changes; nil fields are left as is.
type AccountUpdate struct {
	FullName *string
	Email    *string
}

// ImageField selects which profile image SetUserImage replaces.
type ImageField int

const (
	ImageAvatar ImageField = iota + 1
	ImageCover
)

func (f ImageField) String() string {
	switch f {
	case ImageAvatar:
		return "avatar"
	case ImageCover:
		return "cover-image"
	default:
		return "unknown"
	}
}

// ObjectStorageConfig describes the S3-compatible bucket used for profile
// images. Leaving Bucket empty disables uploads.
type ObjectStorageConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Prefix         string
	PublicEndpoint string
	UsePathStyle   bool
	RequestTimeout time.Duration
}

// ObjectReference identifies an uploaded object.
type ObjectReference struct {
	Key string
	URL string
}
