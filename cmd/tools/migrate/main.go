// Command migrate applies the embedded Postgres schema migrations.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"videobox/internal/observability/logging"
	"videobox/internal/storage"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	statusOnly := flag.Bool("status", false, "print the current schema version without migrating")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "info", Format: "text"})

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("VIDEOBOX_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, VIDEOBOX_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !*statusOnly {
		applied, err := storage.Migrate(ctx, dsn)
		if err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "versions", applied)
	}

	version, err := storage.MigrationStatus(ctx, dsn)
	if err != nil {
		logger.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("schema version", "version", version)
}
