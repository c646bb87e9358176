package api

import (
	"context"
	"net/http"

	"videobox/internal/auth"
	"videobox/internal/models"
	"videobox/internal/observability/logging"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the request's resolved caller. Anonymous is set, and User nil,
// when optional authentication found no usable token.
type Identity struct {
	User      *models.PublicUser
	Anonymous bool
}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.PublicUser, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.Anonymous || identity.User == nil {
		return models.PublicUser{}, false
	}
	return *identity.User, true
}

func withUser(r *http.Request, user models.PublicUser) *http.Request {
	ctx := ContextWithIdentity(r.Context(), Identity{User: &user})
	ctx = logging.ContextWithUserID(ctx, user.ID)
	return r.WithContext(ctx)
}

// RequireUser rejects the request with 401 unless it carries a valid access
// token for an existing user.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.Sessions.Authenticate(r.Context(), ExtractAccessToken(r))
		if err != nil {
			if auth.IsUnauthorized(err) {
				h.logger(r.Context()).Debug("authentication rejected", "path", r.URL.Path, "error", err)
			}
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

// OptionalUser attaches the caller's identity when a valid access token is
// present and otherwise continues anonymously. It never rejects a request.
func (h *Handler) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractAccessToken(r)
		if token == "" {
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), Identity{Anonymous: true})))
			return
		}
		user, err := h.Sessions.Authenticate(r.Context(), token)
		if err != nil {
			if !auth.IsUnauthorized(err) {
				h.logger(r.Context()).Warn("optional authentication failed", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), Identity{Anonymous: true})))
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.PublicUser, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, messageUnauthorized)
		return models.PublicUser{}, false
	}
	return user, true
}
