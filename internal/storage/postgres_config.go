package storage

import (
	"time"

	"videobox/internal/auth"
)

// PostgresConfig describes how the repository initialises its connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
	ApplicationName     string
	Hasher              auth.PasswordHasher
	Clock               func() time.Time
}

const defaultPostgresAcquireTimeout = 5 * time.Second

func newPostgresConfig(dsn string, opts ...Option) PostgresConfig {
	set := collectSettings(opts)
	cfg := PostgresConfig{
		DSN:             dsn,
		MinConnections:  -1,
		AcquireTimeout:  defaultPostgresAcquireTimeout,
		ApplicationName: "videobox",
		Hasher:          set.hasher,
		Clock:           set.now,
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.DefaultPasswordHasher()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	set.pool.applyTo(&cfg)
	return cfg
}
