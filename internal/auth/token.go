package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens. The zero value is
// not a valid kind.
type TokenKind uint8

const (
	TokenAccess TokenKind = iota + 1
	TokenRefresh
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

func (k TokenKind) valid() bool {
	return k == TokenAccess || k == TokenRefresh
}

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 10 * 24 * time.Hour
)

// TokenConfig holds the signing material and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	// Now overrides the clock used for issuing and verifying; tests only.
	Now func() time.Time
}

// Claims is the JWT payload shared by both token kinds.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly signed token and its metadata.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// VerifiedToken is the result of a successful Verify.
type VerifiedToken struct {
	Subject   string
	ID        string
	ExpiresAt time.Time
}

type kindKeys struct {
	secret []byte
	ttl    time.Duration
}

// TokenCodec signs and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type TokenCodec struct {
	keys   map[TokenKind]kindKeys
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewTokenCodec validates cfg and returns a codec. The two secrets must be
// present and distinct.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		keys: map[TokenKind]kindKeys{
			TokenAccess:  {secret: append([]byte(nil), cfg.AccessSecret...), ttl: cfg.AccessTTL},
			TokenRefresh: {secret: append([]byte(nil), cfg.RefreshSecret...), ttl: cfg.RefreshTTL},
		},
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// TTL returns the configured lifetime for kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	return c.keys[kind].ttl
}

// Issue signs a new token of the given kind for subject.
func (c *TokenCodec) Issue(subject string, kind TokenKind) (IssuedToken, error) {
	if subject == "" {
		return IssuedToken{}, ErrInvalidUserID
	}
	keys, ok := c.keys[kind]
	if !ok {
		return IssuedToken{}, fmt.Errorf("issue token: unsupported kind %d", kind)
	}

	now := c.now()
	expiresAt := now.Add(keys.ttl)
	id := uuid.NewString()
	claims := Claims{
		Kind: kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(keys.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return IssuedToken{Value: signed, ID: id, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Verify checks the signature, expiry and kind of raw. Expired tokens fail
// with ErrTokenExpired; every other failure is ErrInvalidToken.
func (c *TokenCodec) Verify(raw string, kind TokenKind) (VerifiedToken, error) {
	if raw == "" {
		return VerifiedToken{}, ErrInvalidToken
	}
	if !kind.valid() {
		return VerifiedToken{}, fmt.Errorf("%w: unsupported kind", ErrInvalidToken)
	}
	keys := c.keys[kind]

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return keys.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedToken{}, ErrTokenExpired
		}
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return VerifiedToken{}, ErrInvalidToken
	}
	if claims.Kind != kind.String() {
		return VerifiedToken{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}
	if claims.Subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	verified := VerifiedToken{Subject: claims.Subject, ID: claims.ID}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}

// ErrInvalidUserID is returned when a token is requested without a subject.
var ErrInvalidUserID = errors.New("userID is required")
