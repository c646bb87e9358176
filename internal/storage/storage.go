package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"videobox/internal/auth"
	"videobox/internal/models"
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
}

// Storage is the JSON-file datastore used for development. Every mutation is
// applied to a cloned dataset, persisted atomically, then swapped in, so a
// failed write leaves memory and disk unchanged.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	hasher          auth.PasswordHasher
	now             func() time.Time
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Subscriptions: make(map[string]models.Subscription),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]models.Subscription)
	}
}

// NewStorage opens (or creates) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	set := collectSettings(opts)
	store := &Storage{
		filePath: path,
		hasher:   set.hasher,
		now:      set.now,
	}
	if store.hasher == nil {
		store.hasher = auth.DefaultPasswordHasher()
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	s.data = data
	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for id, sub := range src.Subscriptions {
		clone.Subscriptions[id] = sub
	}
	return clone
}

// mutateUser runs fn against a copy of the user under the write lock and
// persists the result. fn may return an error to abort without writing.
func (s *Storage) mutateUser(id string, fn func(*models.User) error) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, auth.ErrNotFound
	}
	if err := fn(&user); err != nil {
		return models.User{}, err
	}
	user.UpdatedAt = s.now()

	updated := cloneDataset(s.data)
	updated.Users[id] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func (s *Storage) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := os.Stat(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Storage) Close(context.Context) error {
	return nil
}

func (s *Storage) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, auth.ErrNotFound
	}
	return user, nil
}

func (s *Storage) FindByIdentifier(_ context.Context, identifier string) (models.User, error) {
	email, username := identifierKeys(identifier)
	if email == "" {
		return models.User{}, auth.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Email == email || (username != "" && user.Username == username) {
			return user, nil
		}
	}
	return models.User{}, auth.ErrNotFound
}

func (s *Storage) findByUsernameLocked(username string) (models.User, bool) {
	for _, user := range s.data.Users {
		if user.Username == username {
			return user, true
		}
	}
	return models.User{}, false
}

func (s *Storage) SetRefreshToken(_ context.Context, id, token string) error {
	_, err := s.mutateUser(id, func(user *models.User) error {
		user.RefreshToken = token
		return nil
	})
	return err
}

// SwapRefreshToken compares and replaces under the write lock, so concurrent
// callers presenting the same value cannot both succeed.
func (s *Storage) SwapRefreshToken(_ context.Context, id, presented, next string) error {
	_, err := s.mutateUser(id, func(user *models.User) error {
		if user.RefreshToken == "" {
			return auth.ErrUnauthorized
		}
		if user.RefreshToken != presented {
			return auth.ErrTokenReuseDetected
		}
		user.RefreshToken = next
		return nil
	})
	return err
}

func (s *Storage) SetPasswordHash(_ context.Context, id, hash string, clearRefreshToken bool) error {
	_, err := s.mutateUser(id, func(user *models.User) error {
		user.PasswordHash = hash
		if clearRefreshToken {
			user.RefreshToken = ""
		}
		return nil
	})
	return err
}

func (s *Storage) CreateUser(_ context.Context, params CreateUserParams) (models.User, error) {
	params, err := validateCreateUser(params)
	if err != nil {
		return models.User{}, err
	}
	hashed, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Email == params.Email || existing.Username == params.Username {
			return models.User{}, fmt.Errorf("user with email or username: %w", ErrConflict)
		}
	}

	now := s.now()
	user := models.User{
		ID:           id,
		Username:     params.Username,
		Email:        params.Email,
		FullName:     params.FullName,
		Avatar:       params.Avatar,
		CoverImage:   params.CoverImage,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	updated := cloneDataset(s.data)
	updated.Users[id] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func (s *Storage) UpdateAccount(_ context.Context, id string, update AccountUpdate) (models.User, error) {
	update, err := validateAccountUpdate(update)
	if err != nil {
		return models.User{}, err
	}
	return s.mutateUser(id, func(user *models.User) error {
		if update.Email != nil && *update.Email != user.Email {
			for otherID, other := range s.data.Users {
				if otherID != id && other.Email == *update.Email {
					return fmt.Errorf("email: %w", ErrConflict)
				}
			}
			user.Email = *update.Email
		}
		if update.FullName != nil {
			user.FullName = *update.FullName
		}
		return nil
	})
}

func (s *Storage) SetUserImage(_ context.Context, id string, field ImageField, url string) (models.User, string, error) {
	var previous string
	user, err := s.mutateUser(id, func(user *models.User) error {
		switch field {
		case ImageAvatar:
			previous, user.Avatar = user.Avatar, url
		case ImageCover:
			previous, user.CoverImage = user.CoverImage, url
		default:
			return invalid("unknown image field")
		}
		return nil
	})
	if err != nil {
		return models.User{}, "", err
	}
	return user, previous, nil
}

func (s *Storage) GetChannelProfile(_ context.Context, username, viewerID string) (models.ChannelProfile, error) {
	normalized, err := normalizeUsername(username)
	if err != nil {
		return models.ChannelProfile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.findByUsernameLocked(normalized)
	if !ok {
		return models.ChannelProfile{}, fmt.Errorf("channel %q: %w", normalized, auth.ErrNotFound)
	}
	profile := models.ChannelProfile{PublicUser: channel.Public()}
	for _, sub := range s.data.Subscriptions {
		if sub.ChannelID == channel.ID {
			profile.SubscribersCount++
			if viewerID != "" && sub.SubscriberID == viewerID {
				profile.IsSubscribed = true
			}
		}
		if sub.SubscriberID == channel.ID {
			profile.ChannelsSubscribedTo++
		}
	}
	return profile, nil
}

func (s *Storage) Subscribe(_ context.Context, subscriberID, channelID string) (models.Subscription, error) {
	if subscriberID == channelID {
		return models.Subscription{}, invalid("cannot subscribe to your own channel")
	}
	id, err := generateID()
	if err != nil {
		return models.Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, auth.ErrNotFound)
	}
	if _, ok := s.data.Users[subscriberID]; !ok {
		return models.Subscription{}, auth.ErrNotFound
	}
	for _, existing := range s.data.Subscriptions {
		if existing.SubscriberID == subscriberID && existing.ChannelID == channelID {
			return models.Subscription{}, fmt.Errorf("subscription: %w", ErrConflict)
		}
	}

	sub := models.Subscription{ID: id, SubscriberID: subscriberID, ChannelID: channelID, CreatedAt: s.now()}
	updated := cloneDataset(s.data)
	updated.Subscriptions[id] = sub
	if err := s.persistDataset(updated); err != nil {
		return models.Subscription{}, err
	}
	s.data = updated
	return sub, nil
}

func (s *Storage) Unsubscribe(_ context.Context, subscriberID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target string
	for id, existing := range s.data.Subscriptions {
		if existing.SubscriberID == subscriberID && existing.ChannelID == channelID {
			target = id
			break
		}
	}
	if target == "" {
		return ErrSubscriptionNotFound
	}

	updated := cloneDataset(s.data)
	delete(updated.Subscriptions, target)
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) ListSubscriptions(_ context.Context, subscriberID string) ([]models.SubscriptionEntry, error) {
	return s.listSubscriptionEntries(func(sub models.Subscription) (string, bool) {
		return sub.ChannelID, sub.SubscriberID == subscriberID
	}), nil
}

func (s *Storage) ListSubscribers(_ context.Context, channelID string) ([]models.SubscriptionEntry, error) {
	return s.listSubscriptionEntries(func(sub models.Subscription) (string, bool) {
		return sub.SubscriberID, sub.ChannelID == channelID
	}), nil
}

// listSubscriptionEntries collects the subscriptions accepted by match and
// joins each with the user on the other side.
func (s *Storage) listSubscriptionEntries(match func(models.Subscription) (string, bool)) []models.SubscriptionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.SubscriptionEntry, 0)
	for _, sub := range s.data.Subscriptions {
		otherID, ok := match(sub)
		if !ok {
			continue
		}
		other, ok := s.data.Users[otherID]
		if !ok {
			continue
		}
		entries = append(entries, models.SubscriptionEntry{Subscription: sub, User: other.Summary()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}
