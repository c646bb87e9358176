package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserPublicRedactsCredentials(t *testing.T) {
	user := User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		FullName:     "Alice",
		PasswordHash: "pbkdf2$sha256$1$c2FsdA$a2V5",
		RefreshToken: "refresh-token-value",
		CreatedAt:    time.Unix(100, 0).UTC(),
	}

	encoded, err := json.Marshal(user.Public())
	if err != nil {
		t.Fatalf("marshal public user: %v", err)
	}
	body := string(encoded)
	for _, forbidden := range []string{"passwordHash", "refreshToken", user.PasswordHash, user.RefreshToken} {
		if strings.Contains(body, forbidden) {
			t.Fatalf("public user leaked %q: %s", forbidden, body)
		}
	}
	if !strings.Contains(body, `"username":"alice"`) {
		t.Fatalf("expected username in public view, got %s", body)
	}
}

func TestUserHasSession(t *testing.T) {
	if (User{}).HasSession() {
		t.Fatal("expected empty refresh token to report no session")
	}
	if !(User{RefreshToken: "x"}).HasSession() {
		t.Fatal("expected stored refresh token to report a session")
	}
}
