package api

import (
	"net/http"
	"strings"
)

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// ExtractAccessToken reads the access token from the accessToken cookie,
// falling back to an Authorization bearer header.
func ExtractAccessToken(r *http.Request) string {
	if token := cookieValue(r, AccessTokenCookie); token != "" {
		return token
	}
	return bearerToken(r)
}

// extractRefreshToken prefers the refreshToken cookie, then the value sent in
// the request body, then an Authorization bearer header.
func extractRefreshToken(r *http.Request, fromBody string) string {
	if token := cookieValue(r, RefreshTokenCookie); token != "" {
		return token
	}
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	return bearerToken(r)
}
