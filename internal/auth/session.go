package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"videobox/internal/models"
)

// PasswordChangePolicy decides what happens to the stored refresh token when a
// password changes. Access tokens stay valid until they expire either way.
type PasswordChangePolicy int

const (
	PasswordChangeKeepSessions PasswordChangePolicy = iota
	PasswordChangeRevokeSessions
)

// ParsePasswordChangePolicy accepts "keep" or "revoke".
func ParsePasswordChangePolicy(value string) (PasswordChangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "keep":
		return PasswordChangeKeepSessions, nil
	case "revoke":
		return PasswordChangeRevokeSessions, nil
	default:
		return PasswordChangeKeepSessions, fmt.Errorf("unsupported password change policy %q", value)
	}
}

// Operation and outcome labels passed to an EventRecorder.
const (
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpLogout         = "logout"
	OpPasswordChange = "password_change"

	OutcomeOK                 = "ok"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeReuse              = "reuse"
	OutcomeError              = "error"
)

// EventRecorder receives one event per session operation.
type EventRecorder interface {
	RecordAuthEvent(operation, outcome string)
}

type nopEventRecorder struct{}

func (nopEventRecorder) RecordAuthEvent(string, string) {}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

func WithLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPasswordHasher replaces the PBKDF2 hasher.
func WithPasswordHasher(hasher PasswordHasher) SessionOption {
	return func(m *SessionManager) {
		if hasher != nil {
			m.hasher = hasher
		}
	}
}

func WithReuseTracker(tracker ReuseTracker) SessionOption {
	return func(m *SessionManager) {
		if tracker != nil {
			m.reuse = tracker
		}
	}
}

func WithEventRecorder(recorder EventRecorder) SessionOption {
	return func(m *SessionManager) {
		if recorder != nil {
			m.events = recorder
		}
	}
}

func WithPasswordChangePolicy(policy PasswordChangePolicy) SessionOption {
	return func(m *SessionManager) {
		m.passwordPolicy = policy
	}
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult carries the redacted user alongside the new pair.
type LoginResult struct {
	User   models.PublicUser
	Tokens TokenPair
}

// SessionManager drives login, refresh rotation, logout and password changes
// against a CredentialStore. Only one refresh token is live per user at a
// time; it is immutable after construction and safe for concurrent use.
type SessionManager struct {
	store          CredentialStore
	codec          *TokenCodec
	hasher         PasswordHasher
	reuse          ReuseTracker
	events         EventRecorder
	logger         *slog.Logger
	passwordPolicy PasswordChangePolicy
}

func NewSessionManager(store CredentialStore, codec *TokenCodec, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	manager := &SessionManager{
		store:  store,
		codec:  codec,
		hasher: DefaultPasswordHasher(),
		reuse:  nopReuseTracker{},
		events: nopEventRecorder{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Codec exposes the token codec, mainly for cookie lifetimes.
func (m *SessionManager) Codec() *TokenCodec {
	return m.codec
}

// PasswordHasher returns the hasher used for verification, so registration
// can produce compatible hashes.
func (m *SessionManager) PasswordHasher() PasswordHasher {
	return m.hasher
}

// Login verifies identifier (username or email) and password, issues a new
// pair and overwrites any previously stored refresh token.
func (m *SessionManager) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		m.events.RecordAuthEvent(OpLogin, OutcomeInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := m.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.events.RecordAuthEvent(OpLogin, OutcomeInvalidCredentials)
			m.logger.Info("login rejected", "reason", "unknown_identifier")
			return LoginResult{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrNotFound)
		}
		m.events.RecordAuthEvent(OpLogin, OutcomeError)
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := m.hasher.Verify(user.PasswordHash, password); err != nil {
		m.events.RecordAuthEvent(OpLogin, OutcomeInvalidCredentials)
		if !errors.Is(err, errPasswordMismatch) {
			m.logger.Warn("stored password hash unusable", "user_id", user.ID, "error", err)
		} else {
			m.logger.Info("login rejected", "reason", "password_mismatch", "user_id", user.ID)
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := m.issuePair(user.ID)
	if err != nil {
		m.events.RecordAuthEvent(OpLogin, OutcomeError)
		return LoginResult{}, err
	}
	if err := m.store.SetRefreshToken(ctx, user.ID, HashRefreshToken(pair.RefreshToken)); err != nil {
		m.events.RecordAuthEvent(OpLogin, OutcomeError)
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	m.events.RecordAuthEvent(OpLogin, OutcomeOK)
	return LoginResult{User: user.Public(), Tokens: pair}, nil
}

// Refresh rotates a refresh token. A token that verifies but is not the one
// currently stored fails with ErrTokenReuseDetected and leaves state untouched.
func (m *SessionManager) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
		return TokenPair{}, ErrUnauthorized
	}

	verified, err := m.codec.Verify(presented, TokenRefresh)
	if err != nil {
		m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
		m.logger.Info("refresh rejected", "reason", refreshFailureReason(err))
		return TokenPair{}, err
	}

	user, err := m.store.FindByID(ctx, verified.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
			return TokenPair{}, fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
		}
		m.events.RecordAuthEvent(OpRefresh, OutcomeError)
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.HasSession() {
		m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
		m.logger.Info("refresh rejected", "reason", "no_active_session", "user_id", user.ID)
		return TokenPair{}, ErrUnauthorized
	}

	presentedDigest := HashRefreshToken(presented)
	if !digestsEqual(user.RefreshToken, presentedDigest) {
		m.reportReuse(ctx, user.ID, verified.ID)
		return TokenPair{}, ErrTokenReuseDetected
	}

	pair, err := m.issuePair(user.ID)
	if err != nil {
		m.events.RecordAuthEvent(OpRefresh, OutcomeError)
		return TokenPair{}, err
	}

	// The read above is only a fast path; the conditional swap decides races.
	err = m.store.SwapRefreshToken(ctx, user.ID, presentedDigest, HashRefreshToken(pair.RefreshToken))
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenReuseDetected):
		m.reportReuse(ctx, user.ID, verified.ID)
		return TokenPair{}, ErrTokenReuseDetected
	case errors.Is(err, ErrUnauthorized):
		m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
		return TokenPair{}, ErrUnauthorized
	case errors.Is(err, ErrNotFound):
		m.events.RecordAuthEvent(OpRefresh, OutcomeUnauthorized)
		return TokenPair{}, fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
	default:
		m.events.RecordAuthEvent(OpRefresh, OutcomeError)
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	m.events.RecordAuthEvent(OpRefresh, OutcomeOK)
	return pair, nil
}

// Logout clears the stored refresh token. Repeated calls and unknown users
// are not errors.
func (m *SessionManager) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		m.events.RecordAuthEvent(OpLogout, OutcomeUnauthorized)
		return ErrUnauthorized
	}
	if err := m.store.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, ErrNotFound) {
		m.events.RecordAuthEvent(OpLogout, OutcomeError)
		return fmt.Errorf("clear refresh token: %w", err)
	}
	m.events.RecordAuthEvent(OpLogout, OutcomeOK)
	return nil
}

// ChangePassword replaces the password hash after verifying oldPassword.
// Whether the stored refresh token survives depends on the configured
// PasswordChangePolicy.
func (m *SessionManager) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := m.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.events.RecordAuthEvent(OpPasswordChange, OutcomeUnauthorized)
			return err
		}
		m.events.RecordAuthEvent(OpPasswordChange, OutcomeError)
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := m.hasher.Verify(user.PasswordHash, oldPassword); err != nil {
		m.events.RecordAuthEvent(OpPasswordChange, OutcomeInvalidCredentials)
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		m.events.RecordAuthEvent(OpPasswordChange, OutcomeError)
		return err
	}
	hashed, err := m.hasher.Hash(newPassword)
	if err != nil {
		m.events.RecordAuthEvent(OpPasswordChange, OutcomeError)
		return fmt.Errorf("hash password: %w", err)
	}
	revoke := m.passwordPolicy == PasswordChangeRevokeSessions
	if err := m.store.SetPasswordHash(ctx, user.ID, hashed, revoke); err != nil {
		m.events.RecordAuthEvent(OpPasswordChange, OutcomeError)
		return fmt.Errorf("store password hash: %w", err)
	}
	m.events.RecordAuthEvent(OpPasswordChange, OutcomeOK)
	m.logger.Info("password changed", "user_id", user.ID, "sessions_revoked", revoke)
	return nil
}

// Authenticate verifies an access token and resolves its subject. Token and
// identity failures wrap ErrUnauthorized; store failures are returned as-is.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (models.PublicUser, error) {
	if accessToken == "" {
		return models.PublicUser{}, ErrUnauthorized
	}
	verified, err := m.codec.Verify(accessToken, TokenAccess)
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	user, err := m.store.FindByID(ctx, verified.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.PublicUser{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return models.PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Public(), nil
}

func (m *SessionManager) issuePair(userID string) (TokenPair, error) {
	access, err := m.codec.Issue(userID, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.codec.Issue(userID, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (m *SessionManager) reportReuse(ctx context.Context, userID, tokenID string) {
	m.events.RecordAuthEvent(OpRefresh, OutcomeReuse)
	attrs := []any{"event", "refresh_token_reuse", "user_id", userID, "token_id", tokenID}
	count, err := m.reuse.RecordReuse(ctx, userID)
	if err != nil {
		m.logger.Warn("failed to record refresh token reuse", "user_id", userID, "error", err)
	} else if count > 0 {
		attrs = append(attrs, "incidents", count)
	}
	m.logger.Error("refresh token reuse detected", attrs...)
}

func refreshFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "unknown"
	}
}
