package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"videobox/internal/auth"
)

func TestRepositoryUserLifecycle(t *testing.T) {
	RunRepositoryUserLifecycle(t, jsonRepositoryFactory)
}

func TestRepositoryRefreshTokenSwap(t *testing.T) {
	RunRepositoryRefreshTokenSwap(t, jsonRepositoryFactory)
}

func TestRepositorySubscriptions(t *testing.T) {
	RunRepositorySubscriptions(t, jsonRepositoryFactory)
}

func TestRepositorySubscriptionListings(t *testing.T) {
	RunRepositorySubscriptionListings(t, jsonRepositoryFactory)
}

func TestRepositoryChannelProfile(t *testing.T) {
	RunRepositoryChannelProfile(t, jsonRepositoryFactory)
}

func TestStoragePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewStorage(path, WithPasswordHasher(testHasher), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	id := mustCreateUser(t, store, "ivan")
	judy := mustCreateUser(t, store, "judy")
	if err := store.SetRefreshToken(context.Background(), id, auth.HashRefreshToken("token")); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}
	if _, err := store.Subscribe(context.Background(), id, judy); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	reloaded, err := NewStorage(path, WithPasswordHasher(testHasher))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	user, err := reloaded.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID after reload: %v", err)
	}
	if user.RefreshToken != auth.HashRefreshToken("token") {
		t.Fatal("refresh token digest was not persisted")
	}
	if !user.CreatedAt.Equal(fixed) {
		t.Fatalf("expected created_at %v, got %v", fixed, user.CreatedAt)
	}
	profile, err := reloaded.GetChannelProfile(context.Background(), "judy", id)
	if err != nil {
		t.Fatalf("GetChannelProfile after reload: %v", err)
	}
	if profile.SubscribersCount != 1 || !profile.IsSubscribed {
		t.Fatalf("subscription was not persisted: %+v", profile)
	}
}

func TestStorageRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := NewStorage(path); err == nil {
		t.Fatal("expected decode error for corrupt store file")
	}
}

func TestStoragePersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := mustCreateUser(t, store, "kate")
	leo := mustCreateUser(t, store, "leo")
	current := auth.HashRefreshToken("current")
	if err := store.SetRefreshToken(ctx, id, current); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}

	persistErr := errors.New("disk full")
	store.persistOverride = func(dataset) error { return persistErr }

	if err := store.SwapRefreshToken(ctx, id, current, auth.HashRefreshToken("next")); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error from swap, got %v", err)
	}
	if err := store.SetPasswordHash(ctx, id, "replaced", true); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error from password change, got %v", err)
	}
	if _, err := store.Subscribe(ctx, id, leo); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error from subscribe, got %v", err)
	}
	_, err := store.CreateUser(ctx, CreateUserParams{Username: "mallory", Email: "mallory@example.com", FullName: "Mallory", Password: "password1"})
	if !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error from create, got %v", err)
	}

	store.persistOverride = nil
	user, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if user.RefreshToken != current {
		t.Fatal("failed swap must not change the stored refresh token")
	}
	if user.PasswordHash == "replaced" {
		t.Fatal("failed password change must not change the stored hash")
	}
	if _, err := store.FindByIdentifier(ctx, "mallory"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("failed create must not add the user, got %v", err)
	}
	if err := store.Unsubscribe(ctx, id, leo); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("failed subscribe must not add the subscription, got %v", err)
	}
}

func TestStoragePing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lowercases", input: "Alice", want: "alice"},
		{name: "trims", input: "  bob  ", want: "bob"},
		{name: "too short", input: "ab", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
		{name: "inner space", input: "a b c", wantErr: true},
		{name: "at sign", input: "me@home", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeUsername(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected invalid input, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeUsername: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got, err := normalizeEmail(" Person@Example.COM "); err != nil || got != "person@example.com" {
		t.Fatalf("normalizeEmail = %q, %v", got, err)
	}
	for _, input := range []string{"", "plain", "Name <name@example.com>"} {
		if _, err := normalizeEmail(input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("normalizeEmail(%q) expected invalid input, got %v", input, err)
		}
	}
}

func TestNewPostgresConfigAppliesPoolOverrides(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := newPostgresConfig("postgres://localhost/videobox",
		WithClock(func() time.Time { return fixed }),
		WithPostgresPool(PostgresPool{
			MaxConns:          12,
			MaxConnIdleTime:   time.Minute,
			HealthCheckPeriod: 30 * time.Second,
			ApplicationName:   "  videobox-api  ",
		}),
	)

	if cfg.MaxConnections != 12 {
		t.Fatalf("expected max connections 12, got %d", cfg.MaxConnections)
	}
	if cfg.MinConnections != -1 {
		t.Fatalf("expected min connections to keep the driver default, got %d", cfg.MinConnections)
	}
	if cfg.MaxConnIdleTime != time.Minute || cfg.HealthCheckInterval != 30*time.Second {
		t.Fatalf("unexpected pool durations: idle=%s health=%s", cfg.MaxConnIdleTime, cfg.HealthCheckInterval)
	}
	if cfg.AcquireTimeout != defaultPostgresAcquireTimeout {
		t.Fatalf("expected default acquire timeout, got %s", cfg.AcquireTimeout)
	}
	if cfg.ApplicationName != "videobox-api" {
		t.Fatalf("unexpected application name %q", cfg.ApplicationName)
	}
	if cfg.Hasher == nil {
		t.Fatal("expected default password hasher")
	}
	if !cfg.Clock().Equal(fixed) {
		t.Fatalf("expected injected clock, got %s", cfg.Clock())
	}
}
