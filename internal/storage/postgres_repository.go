package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"videobox/internal/auth"
	"videobox/internal/models"
)

const userColumns = "id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_digest, created_at, updated_at"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository. Migrations must
// already be applied; see Migrate.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.CoverImage,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, auth.ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (r *postgresRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	email, username := identifierKeys(identifier)
	if email == "" {
		return models.User{}, auth.ErrNotFound
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1 OR ($2 <> '' AND username = $2) LIMIT 1",
		email, username))
}

func (r *postgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET refresh_token_digest = $2, updated_at = $3 WHERE id = $1",
		id, token, r.cfg.Clock())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SwapRefreshToken relies on the WHERE clause for atomicity. When no row
// changes, a follow-up read classifies why.
func (r *postgresRepository) SwapRefreshToken(ctx context.Context, id, presented, next string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token_digest = $3, updated_at = $4
		 WHERE id = $1 AND refresh_token_digest <> '' AND refresh_token_digest = $2`,
		id, presented, next, r.cfg.Clock())
	if err != nil {
		return fmt.Errorf("swap refresh token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var stored string
	err = r.pool.QueryRow(ctx, "SELECT refresh_token_digest FROM users WHERE id = $1", id).Scan(&stored)
	switch {
	case isNoRows(err):
		return auth.ErrNotFound
	case err != nil:
		return fmt.Errorf("read refresh token: %w", err)
	case stored == "":
		return auth.ErrUnauthorized
	default:
		return auth.ErrTokenReuseDetected
	}
}

func (r *postgresRepository) SetPasswordHash(ctx context.Context, id, hash string, clearRefreshToken bool) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2,
		 refresh_token_digest = CASE WHEN $3 THEN '' ELSE refresh_token_digest END,
		 updated_at = $4
		 WHERE id = $1`,
		id, hash, clearRefreshToken, r.cfg.Clock())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params, err := validateCreateUser(params)
	if err != nil {
		return models.User{}, err
	}
	hashed, err := r.cfg.Hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	now := r.cfg.Clock()
	user, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_digest, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $8)
		 RETURNING `+userColumns,
		id, params.Username, params.Email, params.FullName, params.Avatar, params.CoverImage, hashed, now))
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user with email or username: %w", ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (models.User, error) {
	update, err := validateAccountUpdate(update)
	if err != nil {
		return models.User{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET full_name = COALESCE($2, full_name), email = COALESCE($3, email), updated_at = $4
		 WHERE id = $1 RETURNING `+userColumns,
		id, update.FullName, update.Email, r.cfg.Clock()))
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("email: %w", ErrConflict)
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) SetUserImage(ctx context.Context, id string, field ImageField, url string) (models.User, string, error) {
	var column string
	switch field {
	case ImageAvatar:
		column = "avatar_url"
	case ImageCover:
		column = "cover_image_url"
	default:
		return models.User{}, "", invalid("unknown image field")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, "", fmt.Errorf("begin image update: %w", err)
	}
	defer rollbackTx(ctx, tx)

	var previous string
	if err := tx.QueryRow(ctx, "SELECT "+column+" FROM users WHERE id = $1 FOR UPDATE", id).Scan(&previous); err != nil {
		if isNoRows(err) {
			return models.User{}, "", auth.ErrNotFound
		}
		return models.User{}, "", fmt.Errorf("read %s: %w", field, err)
	}
	user, err := scanUser(tx.QueryRow(ctx,
		"UPDATE users SET "+column+" = $2, updated_at = $3 WHERE id = $1 RETURNING "+userColumns,
		id, url, r.cfg.Clock()))
	if err != nil {
		return models.User{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, "", fmt.Errorf("commit image update: %w", err)
	}
	return user, previous, nil
}

func (r *postgresRepository) GetChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	normalized, err := normalizeUsername(username)
	if err != nil {
		return models.ChannelProfile{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	channel, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", normalized))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return models.ChannelProfile{}, fmt.Errorf("channel %q: %w", normalized, auth.ErrNotFound)
		}
		return models.ChannelProfile{}, err
	}

	profile := models.ChannelProfile{PublicUser: channel.Public()}
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1),
			(SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1),
			EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2 AND $2 <> '')`,
		channel.ID, viewerID).Scan(&profile.SubscribersCount, &profile.ChannelsSubscribedTo, &profile.IsSubscribed)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("count subscriptions: %w", err)
	}
	return profile, nil
}

func (r *postgresRepository) Subscribe(ctx context.Context, subscriberID, channelID string) (models.Subscription, error) {
	if subscriberID == channelID {
		return models.Subscription{}, invalid("cannot subscribe to your own channel")
	}
	id, err := generateID()
	if err != nil {
		return models.Subscription{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", channelID).Scan(&exists); err != nil {
		return models.Subscription{}, fmt.Errorf("lookup channel: %w", err)
	}
	if !exists {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, auth.ErrNotFound)
	}

	sub := models.Subscription{ID: id, SubscriberID: subscriberID, ChannelID: channelID}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		id, subscriberID, channelID, r.cfg.Clock()).Scan(&sub.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case isUniqueViolation(err):
			return models.Subscription{}, fmt.Errorf("subscription: %w", ErrConflict)
		case errors.As(err, &pgErr) && pgErr.Code == "23503":
			return models.Subscription{}, auth.ErrNotFound
		}
		return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

func (r *postgresRepository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, "DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2", subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *postgresRepository) ListSubscriptions(ctx context.Context, subscriberID string) ([]models.SubscriptionEntry, error) {
	return r.listSubscriptionEntries(ctx, "channel_id", "subscriber_id", subscriberID)
}

func (r *postgresRepository) ListSubscribers(ctx context.Context, channelID string) ([]models.SubscriptionEntry, error) {
	return r.listSubscriptionEntries(ctx, "subscriber_id", "channel_id", channelID)
}

// listSubscriptionEntries joins subscriptions filtered on filterColumn with the
// user referenced by joinColumn. Both column names are package constants.
func (r *postgresRepository) listSubscriptionEntries(ctx context.Context, joinColumn, filterColumn, id string) ([]models.SubscriptionEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.subscriber_id, s.channel_id, s.created_at, u.id, u.username, u.full_name, u.avatar_url
		FROM subscriptions s JOIN users u ON u.id = s.`+joinColumn+`
		WHERE s.`+filterColumn+` = $1
		ORDER BY s.created_at, s.id`, id)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	entries := make([]models.SubscriptionEntry, 0)
	for rows.Next() {
		var entry models.SubscriptionEntry
		if err := rows.Scan(&entry.ID, &entry.SubscriberID, &entry.ChannelID, &entry.CreatedAt,
			&entry.User.ID, &entry.User.Username, &entry.User.FullName, &entry.User.Avatar); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return entries, nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
