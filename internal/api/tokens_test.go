package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenExtractionOrder(t *testing.T) {
	cases := []struct {
		name        string
		cookies     map[string]string
		bearer      string
		body        string
		wantAccess  string
		wantRefresh string
	}{
		{name: "nothing"},
		{name: "cookie wins over bearer", cookies: map[string]string{AccessTokenCookie: "a-cookie", RefreshTokenCookie: "r-cookie"}, bearer: "bearer", body: "body", wantAccess: "a-cookie", wantRefresh: "r-cookie"},
		{name: "refresh body wins over bearer", bearer: "bearer", body: "body", wantAccess: "bearer", wantRefresh: "body"},
		{name: "bearer fallback", bearer: "bearer", wantAccess: "bearer", wantRefresh: "bearer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for name, value := range tc.cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "bearer "+tc.bearer)
			}
			if got := ExtractAccessToken(req); got != tc.wantAccess {
				t.Fatalf("ExtractAccessToken = %q, want %q", got, tc.wantAccess)
			}
			if got := extractRefreshToken(req, tc.body); got != tc.wantRefresh {
				t.Fatalf("extractRefreshToken = %q, want %q", got, tc.wantRefresh)
			}
		})
	}
}

func TestBearerTokenIgnoresOtherSchemes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := bearerToken(req); got != "" {
		t.Fatalf("expected empty token for basic auth, got %q", got)
	}
}
