package storage

import (
	"strings"
	"time"

	"videobox/internal/auth"
)

// Option tunes a repository. Options that do not apply to a backend are
// ignored by it.
type Option func(*settings)

type settings struct {
	hasher auth.PasswordHasher
	now    func() time.Time
	pool   PostgresPool
}

func collectSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// PostgresPool overrides pgxpool settings. Zero fields keep the driver or
// repository defaults.
type PostgresPool struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AcquireTimeout    time.Duration
	ApplicationName   string
}

func (p PostgresPool) applyTo(cfg *PostgresConfig) {
	if p.MaxConns > 0 {
		cfg.MaxConnections = p.MaxConns
	}
	if p.MinConns > 0 {
		cfg.MinConnections = p.MinConns
	}
	if p.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = p.MaxConnLifetime
	}
	if p.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = p.MaxConnIdleTime
	}
	if p.HealthCheckPeriod > 0 {
		cfg.HealthCheckInterval = p.HealthCheckPeriod
	}
	if p.AcquireTimeout > 0 {
		cfg.AcquireTimeout = p.AcquireTimeout
	}
	if name := strings.TrimSpace(p.ApplicationName); name != "" {
		cfg.ApplicationName = name
	}
}

// WithPasswordHasher sets the hasher used when creating users. It must match
// the hasher the session manager verifies with.
func WithPasswordHasher(hasher auth.PasswordHasher) Option {
	return func(s *settings) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithClock overrides the timestamp source; tests only.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPostgresPool tunes the Postgres connection pool. The JSON store ignores it.
func WithPostgresPool(pool PostgresPool) Option {
	return func(s *settings) {
		s.pool = pool
	}
}
