package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"videobox/internal/auth"
	"videobox/internal/models"
)

// RepositoryFactory constructs a repository backed by either the JSON store or
// the Postgres implementation for cross-datastore scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	opts = append([]Option{WithPasswordHasher(testHasher)}, opts...)
	repo, cleanup, err := factory(t, opts...)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

// RunRepositoryUserLifecycle covers registration, lookup and account updates.
func RunRepositoryUserLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, CreateUserParams{
		Username: "  Alice ",
		Email:    "Alice@Example.com",
		FullName: " Alice Liddell ",
		Password: "wonderland",
		Avatar:   "https://cdn.example.com/a.png",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.Username != "alice" || created.Email != "alice@example.com" || created.FullName != "Alice Liddell" {
		t.Fatalf("unexpected normalization: %+v", created)
	}
	if created.PasswordHash == "" || created.PasswordHash == "wonderland" {
		t.Fatal("expected password to be stored hashed")
	}
	if err := testHasher.Verify(created.PasswordHash, "wonderland"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	if created.RefreshToken != "" {
		t.Fatal("new users must not hold a refresh token")
	}

	for _, identifier := range []string{"alice", "ALICE", "alice@example.com", " Alice@example.COM "} {
		found, err := repo.FindByIdentifier(ctx, identifier)
		if err != nil {
			t.Fatalf("FindByIdentifier(%q): %v", identifier, err)
		}
		if found.ID != created.ID {
			t.Fatalf("FindByIdentifier(%q) returned %s", identifier, found.ID)
		}
	}
	if _, err := repo.FindByIdentifier(ctx, "nobody"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown identifier, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	_, err = repo.CreateUser(ctx, CreateUserParams{Username: "alice", Email: "other@example.com", FullName: "Other", Password: "password1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	_, err = repo.CreateUser(ctx, CreateUserParams{Username: "other", Email: "ALICE@example.com", FullName: "Other", Password: "password1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}

	_, err = repo.CreateUser(ctx, CreateUserParams{Username: "x", Email: "bad", Password: "short"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Fatalf("expected four problems, got %v", verr.Problems)
	}

	fullName := "Alice Pleasance Liddell"
	email := "alice@wonderland.example"
	updated, err := repo.UpdateAccount(ctx, created.ID, AccountUpdate{FullName: &fullName, Email: &email})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if updated.FullName != fullName || updated.Email != email {
		t.Fatalf("unexpected account update result: %+v", updated)
	}

	bob := mustCreateUser(t, repo, "bob")
	taken := "alice@wonderland.example"
	if _, err := repo.UpdateAccount(ctx, bob, AccountUpdate{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected email conflict on update, got %v", err)
	}
	if _, err := repo.UpdateAccount(ctx, bob, AccountUpdate{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
	if _, err := repo.UpdateAccount(ctx, "missing", AccountUpdate{FullName: &fullName}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating unknown user, got %v", err)
	}

	user, previous, err := repo.SetUserImage(ctx, created.ID, ImageAvatar, "https://cdn.example.com/b.png")
	if err != nil {
		t.Fatalf("SetUserImage: %v", err)
	}
	if previous != "https://cdn.example.com/a.png" || user.Avatar != "https://cdn.example.com/b.png" {
		t.Fatalf("unexpected avatar swap: previous=%q avatar=%q", previous, user.Avatar)
	}
	user, previous, err = repo.SetUserImage(ctx, created.ID, ImageCover, "https://cdn.example.com/cover.png")
	if err != nil {
		t.Fatalf("SetUserImage cover: %v", err)
	}
	if previous != "" || user.CoverImage != "https://cdn.example.com/cover.png" {
		t.Fatalf("unexpected cover swap: previous=%q cover=%q", previous, user.CoverImage)
	}
}

// RunRepositoryRefreshTokenSwap covers the conditional swap used by refresh
// rotation.
func RunRepositoryRefreshTokenSwap(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	id := mustCreateUser(t, repo, "carol")

	if err := repo.SwapRefreshToken(ctx, id, "anything", "next"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized with no stored token, got %v", err)
	}

	first := auth.HashRefreshToken("first")
	if err := repo.SetRefreshToken(ctx, id, first); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}
	second := auth.HashRefreshToken("second")
	if err := repo.SwapRefreshToken(ctx, id, first, second); err != nil {
		t.Fatalf("SwapRefreshToken: %v", err)
	}
	if err := repo.SwapRefreshToken(ctx, id, first, auth.HashRefreshToken("third")); !errors.Is(err, auth.ErrTokenReuseDetected) {
		t.Fatalf("expected reuse detection for stale token, got %v", err)
	}
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if user.RefreshToken != second {
		t.Fatal("stale swap must leave the current token in place")
	}
	if err := repo.SwapRefreshToken(ctx, "missing", first, second); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	// Exactly one concurrent swap of the same presented value may win.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := repo.SwapRefreshToken(ctx, id, second, auth.HashRefreshToken(string(rune('a'+n))))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, auth.ErrTokenReuseDetected) {
				t.Errorf("unexpected swap error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winning swap, got %d", winners)
	}

	if err := repo.SetPasswordHash(ctx, id, "hash-keep", false); err != nil {
		t.Fatalf("SetPasswordHash keep: %v", err)
	}
	user, _ = repo.FindByID(ctx, id)
	if user.PasswordHash != "hash-keep" || user.RefreshToken == "" {
		t.Fatalf("keep policy should preserve refresh token: %+v", user)
	}
	if err := repo.SetPasswordHash(ctx, id, "hash-revoke", true); err != nil {
		t.Fatalf("SetPasswordHash revoke: %v", err)
	}
	user, _ = repo.FindByID(ctx, id)
	if user.PasswordHash != "hash-revoke" || user.RefreshToken != "" {
		t.Fatalf("revoke policy should clear refresh token: %+v", user)
	}
	if err := repo.SetRefreshToken(ctx, "missing", ""); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound clearing unknown user, got %v", err)
	}
}

// RunRepositorySubscriptions covers subscribe, duplicate and unsubscribe flows.
func RunRepositorySubscriptions(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	dave := mustCreateUser(t, repo, "dave")
	erin := mustCreateUser(t, repo, "erin")

	sub, err := repo.Subscribe(ctx, dave, erin)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.ID == "" || sub.SubscriberID != dave || sub.ChannelID != erin || sub.CreatedAt.IsZero() {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if _, err := repo.Subscribe(ctx, dave, erin); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate subscription, got %v", err)
	}
	if _, err := repo.Subscribe(ctx, dave, dave); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for self subscription, got %v", err)
	}
	if _, err := repo.Subscribe(ctx, dave, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}

	if err := repo.Unsubscribe(ctx, dave, erin); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := repo.Unsubscribe(ctx, dave, erin); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

// RunRepositorySubscriptionListings covers both directions of the
// subscription listing and the user summary joined onto each entry.
func RunRepositorySubscriptionListings(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	ivan := mustCreateUser(t, repo, "ivan")
	judy := mustCreateUser(t, repo, "judy")
	mallory := mustCreateUser(t, repo, "mallory")

	for _, pair := range [][2]string{{ivan, judy}, {ivan, mallory}, {mallory, judy}} {
		if _, err := repo.Subscribe(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("Subscribe %v: %v", pair, err)
		}
	}

	following, err := repo.ListSubscriptions(ctx, ivan)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if got := entryUsernames(following); len(got) != 2 || !got["judy"] || !got["mallory"] {
		t.Fatalf("unexpected subscriptions for ivan: %+v", following)
	}
	for _, entry := range following {
		if entry.SubscriberID != ivan || entry.ChannelID != entry.User.ID || entry.User.FullName == "" {
			t.Fatalf("unexpected subscription entry: %+v", entry)
		}
	}

	audience, err := repo.ListSubscribers(ctx, judy)
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if got := entryUsernames(audience); len(got) != 2 || !got["ivan"] || !got["mallory"] {
		t.Fatalf("unexpected subscribers for judy: %+v", audience)
	}
	for _, entry := range audience {
		if entry.ChannelID != judy || entry.SubscriberID != entry.User.ID {
			t.Fatalf("unexpected subscriber entry: %+v", entry)
		}
	}
	for i := 1; i < len(audience); i++ {
		if audience[i].CreatedAt.Before(audience[i-1].CreatedAt) {
			t.Fatalf("subscribers not ordered oldest first: %+v", audience)
		}
	}

	none, err := repo.ListSubscribers(ctx, ivan)
	if err != nil {
		t.Fatalf("ListSubscribers empty: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil listing, got %#v", none)
	}

	if err := repo.Unsubscribe(ctx, ivan, judy); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	following, err = repo.ListSubscriptions(ctx, ivan)
	if err != nil {
		t.Fatalf("ListSubscriptions after unsubscribe: %v", err)
	}
	if got := entryUsernames(following); len(got) != 1 || !got["mallory"] {
		t.Fatalf("expected only mallory after unsubscribe, got %+v", following)
	}
}

func entryUsernames(entries []models.SubscriptionEntry) map[string]bool {
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.User.Username] = true
	}
	return names
}

// RunRepositoryChannelProfile covers the aggregated channel view.
func RunRepositoryChannelProfile(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	frank := mustCreateUser(t, repo, "frank")
	grace := mustCreateUser(t, repo, "grace")
	heidi := mustCreateUser(t, repo, "heidi")

	for _, pair := range [][2]string{{grace, frank}, {heidi, frank}, {frank, grace}} {
		if _, err := repo.Subscribe(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("Subscribe %v: %v", pair, err)
		}
	}

	profile, err := repo.GetChannelProfile(ctx, "Frank", grace)
	if err != nil {
		t.Fatalf("GetChannelProfile: %v", err)
	}
	if profile.ID != frank || profile.Username != "frank" {
		t.Fatalf("unexpected channel: %+v", profile.PublicUser)
	}
	if profile.SubscribersCount != 2 || profile.ChannelsSubscribedTo != 1 || !profile.IsSubscribed {
		t.Fatalf("unexpected counts: %+v", profile)
	}

	anonymous, err := repo.GetChannelProfile(ctx, "frank", "")
	if err != nil {
		t.Fatalf("GetChannelProfile anonymous: %v", err)
	}
	if anonymous.IsSubscribed {
		t.Fatal("anonymous viewers are never subscribed")
	}

	if _, err := repo.GetChannelProfile(ctx, "nobody", ""); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}
	if _, err := repo.GetChannelProfile(ctx, "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank username, got %v", err)
	}
}
