//go:build postgres

package storage_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"videobox/internal/storage"
)

// postgresRepositoryFactory opens a Postgres-backed repository for integration
// scenarios. VIDEOBOX_TEST_POSTGRES_DSN must point at a database dedicated to
// automated runs; its tables are truncated before and after each test.
func postgresRepositoryFactory(t *testing.T, opts ...storage.Option) (storage.Repository, func(), error) {
	t.Helper()
	dsn := os.Getenv("VIDEOBOX_TEST_POSTGRES_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("VIDEOBOX_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	if _, err := storage.Migrate(ctx, dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	if err := truncatePostgresTables(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("truncate tables: %v", err)
	}

	repo, err := storage.NewPostgresRepository(dsn, opts...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	t.Cleanup(func() {
		if err := truncatePostgresTables(context.Background(), pool); err != nil {
			t.Errorf("truncate tables: %v", err)
		}
		pool.Close()
	})
	t.Cleanup(func() {
		if err := repo.Close(context.Background()); err != nil {
			t.Errorf("close repository: %v", err)
		}
	})
	return repo, nil, nil
}

func TestPostgresRepositoryConnection(t *testing.T) {
	repo, _, err := postgresRepositoryFactory(t)
	if err != nil {
		t.Fatalf("failed to open postgres repository: %v", err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPostgresMigrationStatus(t *testing.T) {
	dsn := os.Getenv("VIDEOBOX_TEST_POSTGRES_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("VIDEOBOX_TEST_POSTGRES_DSN not set")
	}
	if _, err := storage.Migrate(context.Background(), dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	version, err := storage.MigrationStatus(context.Background(), dsn)
	if err != nil {
		t.Fatalf("MigrationStatus: %v", err)
	}
	if version < 2 {
		t.Fatalf("expected schema version >= 2, got %d", version)
	}
}

func TestPostgresUserLifecycle(t *testing.T) {
	storage.RunRepositoryUserLifecycle(t, postgresRepositoryFactory)
}

func TestPostgresRefreshTokenSwap(t *testing.T) {
	storage.RunRepositoryRefreshTokenSwap(t, postgresRepositoryFactory)
}

func TestPostgresSubscriptions(t *testing.T) {
	storage.RunRepositorySubscriptions(t, postgresRepositoryFactory)
}

func TestPostgresSubscriptionListings(t *testing.T) {
	storage.RunRepositorySubscriptionListings(t, postgresRepositoryFactory)
}

func TestPostgresChannelProfile(t *testing.T) {
	storage.RunRepositoryChannelProfile(t, postgresRepositoryFactory)
}

func truncatePostgresTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE subscriptions, users")
	return err
}
