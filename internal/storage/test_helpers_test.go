package storage

import (
	"path/filepath"
	"testing"

	"videobox/internal/auth"
)

// testHasher keeps PBKDF2 cheap enough for table-driven tests.
var testHasher = auth.PBKDF2Hasher{Iterations: 1000}

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	opts := append([]Option{WithPasswordHasher(testHasher)}, extra...)
	store, err := NewStorage(path, opts...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func jsonRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	opts = append([]Option{WithPasswordHasher(testHasher)}, opts...)
	store, err := NewStorage(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func mustCreateUser(t *testing.T, repo Repository, username string) string {
	t.Helper()
	user, err := repo.CreateUser(t.Context(), CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "User " + username,
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
	return user.ID
}
