package api

import (
	"net/http"
	"strings"
	"time"

	"videobox/internal/auth"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type SessionCookieSecureMode int

const (
	// SessionCookieSecureAuto marks cookies Secure only on HTTPS requests.
	SessionCookieSecureAuto SessionCookieSecureMode = iota
	SessionCookieSecureAlways
)

// SessionCookiePolicy controls the attributes of the token cookies. Both
// cookies are always HttpOnly and scoped to "/".
type SessionCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode SessionCookieSecureMode
	Domain     string
}

func DefaultSessionCookiePolicy() SessionCookiePolicy {
	return SessionCookiePolicy{
		SameSite:   http.SameSiteLaxMode,
		SecureMode: SessionCookieSecureAuto,
	}
}

// cookie builds a token cookie. A zero expiry produces a deletion cookie.
func (p SessionCookiePolicy) cookie(r *http.Request, name, value string, expires time.Time, now time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.SecureMode == SessionCookieSecureAlways || isSecureRequest(r),
		SameSite: p.SameSite,
	}
	if expires.IsZero() {
		c.Value = ""
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
		return c
	}
	c.Expires = expires.UTC()
	c.MaxAge = max(int(expires.Sub(now).Seconds()), 0)
	return c
}

func (h *Handler) sessionCookiePolicy() SessionCookiePolicy {
	policy := h.SessionCookiePolicy
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteLaxMode
	}
	policy.Domain = strings.TrimSpace(policy.Domain)
	return policy
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	policy := h.sessionCookiePolicy()
	now := time.Now()
	for _, token := range []struct {
		name    string
		value   string
		expires time.Time
	}{
		{AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt},
		{RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt},
	} {
		if token.value == "" || token.expires.IsZero() {
			continue
		}
		http.SetCookie(w, policy.cookie(r, token.name, token.value, token.expires, now))
	}
}

// ClearSessionCookies removes both token cookies using the handler's policy.
func (h *Handler) ClearSessionCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.sessionCookiePolicy()
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, policy.cookie(r, name, "", time.Time{}, time.Time{}))
	}
}

// isSecureRequest reports whether the client reached us over HTTPS, directly
// or through a proxy that sets X-Forwarded-Proto.
func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return r.URL != nil && strings.EqualFold(r.URL.Scheme, "https")
}
