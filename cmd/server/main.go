// Command server starts the videobox API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"videobox/internal/api"
	"videobox/internal/auth"
	"videobox/internal/observability/logging"
	"videobox/internal/observability/metrics"
	"videobox/internal/server"
	"videobox/internal/serverutil"
	"videobox/internal/storage"
)

func main() {
	var fv flagValues
	flag.StringVar(&fv.addr, "addr", "", "HTTP listen address")
	flag.StringVar(&fv.mode, "mode", "", "server runtime mode (development or production)")
	flag.StringVar(&fv.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&fv.logFormat, "log-format", "", "log format (json or text)")
	flag.StringVar(&fv.tlsCert, "tls-cert", "", "path to TLS certificate file")
	flag.StringVar(&fv.tlsKey, "tls-key", "", "path to TLS private key file")
	flag.StringVar(&fv.storageDriver, "storage-driver", "", "datastore driver (json or postgres)")
	flag.StringVar(&fv.dataPath, "data", "", "path to JSON datastore")
	flag.StringVar(&fv.postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.IntVar(&fv.postgresMaxConns, "postgres-max-conns", 0, "maximum connections in the Postgres pool")
	flag.IntVar(&fv.postgresMinConns, "postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	flag.DurationVar(&fv.postgresAcquire, "postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	flag.DurationVar(&fv.postgresMaxLifetime, "postgres-max-conn-lifetime", 0, "maximum lifetime of a pooled Postgres connection")
	flag.DurationVar(&fv.postgresMaxIdle, "postgres-max-conn-idle", 0, "maximum idle time of a pooled Postgres connection")
	flag.DurationVar(&fv.postgresHealthCheck, "postgres-health-check-period", 0, "interval between pool health checks")
	flag.StringVar(&fv.postgresAppName, "postgres-app-name", "", "application_name reported to Postgres")
	flag.BoolVar(&fv.postgresMigrate, "postgres-migrate", false, "apply pending schema migrations before serving")
	flag.StringVar(&fv.accessSecret, "access-token-secret", "", "HMAC secret for access tokens")
	flag.StringVar(&fv.refreshSecret, "refresh-token-secret", "", "HMAC secret for refresh tokens")
	flag.DurationVar(&fv.accessTTL, "access-token-ttl", 0, "access token lifetime")
	flag.DurationVar(&fv.refreshTTL, "refresh-token-ttl", 0, "refresh token lifetime")
	flag.StringVar(&fv.tokenIssuer, "token-issuer", "", "issuer claim stamped on and required from tokens")
	flag.StringVar(&fv.passwordPolicy, "password-change-policy", "", "refresh token handling on password change (keep or revoke)")
	flag.StringVar(&fv.cookieSameSite, "cookie-samesite", "", "SameSite mode for session cookies (lax, strict or none)")
	flag.StringVar(&fv.cookieDomain, "cookie-domain", "", "Domain attribute for session cookies (empty for host-only)")
	flag.StringVar(&fv.allowedOrigins, "cors-origins", "", "comma separated browser origins allowed to call the API")
	flag.StringVar(&fv.redisAddrs, "redis-addrs", "", "comma separated Redis addresses for the reuse tracker")
	flag.StringVar(&fv.redisUsername, "redis-username", "", "Redis username")
	flag.StringVar(&fv.redisPassword, "redis-password", "", "Redis password")
	flag.StringVar(&fv.redisMasterName, "redis-master-name", "", "Redis sentinel master name")
	flag.IntVar(&fv.redisPoolSize, "redis-pool-size", 0, "maximum Redis connections")
	flag.DurationVar(&fv.reuseWindow, "reuse-window", 0, "window for counting refresh token reuse per user")
	flag.StringVar(&fv.objectEndpoint, "object-endpoint", "", "S3-compatible endpoint (e.g. http://127.0.0.1:9000)")
	flag.StringVar(&fv.objectRegion, "object-region", "", "object storage region")
	flag.StringVar(&fv.objectAccessKey, "object-access-key", "", "object storage access key")
	flag.StringVar(&fv.objectSecretKey, "object-secret-key", "", "object storage secret key")
	flag.StringVar(&fv.objectBucket, "object-bucket", "", "object storage bucket; empty disables image uploads")
	flag.StringVar(&fv.objectPrefix, "object-prefix", "", "key prefix for uploaded images")
	flag.StringVar(&fv.objectPublicURL, "object-public-endpoint", "", "public base URL for uploaded images")
	flag.BoolVar(&fv.objectPathStyle, "object-path-style", false, "use path-style bucket addressing")
	flag.DurationVar(&fv.shutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flag.DurationVar(&fv.probeInterval, "probe-interval", 0, "interval between background dependency probes")
	flag.IntVar(&fv.maxUploadMegabytes, "max-upload-mb", 0, "maximum image upload size in megabytes")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(fv.logLevel, os.Getenv("VIDEOBOX_LOG_LEVEL"), "info"),
		Format: firstNonEmpty(fv.logFormat, os.Getenv("VIDEOBOX_LOG_FORMAT")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fv, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, fv flagValues, logger *slog.Logger) error {
	mode := modeValue(fv.mode, os.Getenv("VIDEOBOX_MODE"))
	if err := validateMode(mode); err != nil {
		return err
	}

	secrets, err := resolveSecrets(mode,
		firstNonEmpty(fv.accessSecret, os.Getenv("VIDEOBOX_ACCESS_TOKEN_SECRET")),
		firstNonEmpty(fv.refreshSecret, os.Getenv("VIDEOBOX_REFRESH_TOKEN_SECRET")),
	)
	if err != nil {
		return err
	}
	if secrets.Generated {
		logger.Warn("token secrets not configured; generated ephemeral secrets, sessions will not survive a restart")
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  secrets.Access,
		RefreshSecret: secrets.Refresh,
		AccessTTL:     resolveDuration(fv.accessTTL, "VIDEOBOX_ACCESS_TOKEN_TTL", 0),
		RefreshTTL:    resolveDuration(fv.refreshTTL, "VIDEOBOX_REFRESH_TOKEN_TTL", 0),
		Issuer:        firstNonEmpty(fv.tokenIssuer, os.Getenv("VIDEOBOX_TOKEN_ISSUER")),
	})
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	passwordPolicy, err := auth.ParsePasswordChangePolicy(firstNonEmpty(fv.passwordPolicy, os.Getenv("VIDEOBOX_PASSWORD_CHANGE_POLICY")))
	if err != nil {
		return err
	}
	cookiePolicy, err := resolveSessionCookiePolicy(mode, firstNonEmpty(fv.cookieSameSite, os.Getenv("VIDEOBOX_COOKIE_SAMESITE")))
	if err != nil {
		return err
	}

	store, err := openRepository(ctx, fv, mode, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}()

	recorder := metrics.New()
	sessionOpts := []auth.SessionOption{
		auth.WithLogger(logging.WithComponent(logger, "auth")),
		auth.WithEventRecorder(recorder),
		auth.WithPasswordChangePolicy(passwordPolicy),
	}

	var extraProbes []api.HealthProbe

	redisCfg := redisConfig{
		Addrs:      splitAndTrim(firstNonEmpty(fv.redisAddrs, os.Getenv("VIDEOBOX_REDIS_ADDRS"))),
		Username:   firstNonEmpty(fv.redisUsername, os.Getenv("VIDEOBOX_REDIS_USERNAME")),
		Password:   firstNonEmpty(fv.redisPassword, os.Getenv("VIDEOBOX_REDIS_PASSWORD")),
		MasterName: firstNonEmpty(fv.redisMasterName, os.Getenv("VIDEOBOX_REDIS_MASTER_NAME")),
		PoolSize:   resolveInt(fv.redisPoolSize, "VIDEOBOX_REDIS_POOL_SIZE"),
		Window:     resolveDuration(fv.reuseWindow, "VIDEOBOX_REUSE_WINDOW", 0),
	}
	if redisCfg.enabled() {
		tracker, client, err := newReuseTracker(redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		sessionOpts = append(sessionOpts, auth.WithReuseTracker(tracker))
		extraProbes = append(extraProbes, api.HealthProbe{Name: "redis", Check: tracker.Ping})
		logger.Info("redis enabled for refresh token reuse tracking", "redis_addrs", redisCfg.Addrs)
	}

	sessions, err := auth.NewSessionManager(store, codec, sessionOpts...)
	if err != nil {
		return fmt.Errorf("configure sessions: %w", err)
	}

	objects, err := storage.NewObjectStorage(ctx, storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(fv.objectEndpoint, os.Getenv("VIDEOBOX_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(fv.objectRegion, os.Getenv("VIDEOBOX_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(fv.objectAccessKey, os.Getenv("VIDEOBOX_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(fv.objectSecretKey, os.Getenv("VIDEOBOX_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(fv.objectBucket, os.Getenv("VIDEOBOX_OBJECT_BUCKET")),
		Prefix:         firstNonEmpty(fv.objectPrefix, os.Getenv("VIDEOBOX_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(fv.objectPublicURL, os.Getenv("VIDEOBOX_OBJECT_PUBLIC_ENDPOINT")),
		UsePathStyle:   resolveBool(fv.objectPathStyle, "VIDEOBOX_OBJECT_PATH_STYLE"),
	})
	if err != nil {
		return fmt.Errorf("configure object storage: %w", err)
	}
	if !objects.Enabled() {
		logger.Info("object storage not configured; avatar and cover uploads are disabled")
	}

	handler := api.NewHandler(store, sessions, objects)
	handler.Logger = logging.WithComponent(logger, "api")
	cookiePolicy.Domain = firstNonEmpty(fv.cookieDomain, os.Getenv("VIDEOBOX_COOKIE_DOMAIN"))
	handler.SessionCookiePolicy = cookiePolicy
	handler.Probes = extraProbes
	if mb := resolveInt(fv.maxUploadMegabytes, "VIDEOBOX_MAX_UPLOAD_MB"); mb > 0 {
		handler.MaxUploadBytes = int64(mb) << 20
	}

	srv, err := server.New(handler, server.Config{
		Addr: resolveListenAddr(fv.addr, mode, os.Getenv("VIDEOBOX_ADDR")),
		TLS: serverutil.TLSConfig{
			CertFile: firstNonEmpty(fv.tlsCert, os.Getenv("VIDEOBOX_TLS_CERT")),
			KeyFile:  firstNonEmpty(fv.tlsKey, os.Getenv("VIDEOBOX_TLS_KEY")),
		},
		Logger:  logger,
		Metrics: recorder,
		CORS:    server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(fv.allowedOrigins, os.Getenv("VIDEOBOX_CORS_ORIGINS")))},
	})
	if err != nil {
		return fmt.Errorf("initialise server: %w", err)
	}

	logger.Info("starting videobox", "mode", mode, "password_change_policy", passwordPolicyName(passwordPolicy))

	probes := append([]api.HealthProbe{{Name: "datastore", Check: store.Ping}}, extraProbes...)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, resolveDuration(fv.shutdownTimeout, "VIDEOBOX_SHUTDOWN_TIMEOUT", serverutil.DefaultShutdownTimeout), nil)
	})
	group.Go(func() error {
		stopMonitor := startProbeMonitor(groupCtx, logging.WithComponent(logger, "probes"), probes, resolveDuration(fv.probeInterval, "VIDEOBOX_PROBE_INTERVAL", 30*time.Second))
		<-groupCtx.Done()
		stopMonitor()
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRepository(ctx context.Context, fv flagValues, mode string, logger *slog.Logger) (storage.Repository, error) {
	postgresDSN := resolvePostgresDSN(fv.postgresDSN)
	driver, err := resolveStorageDriver(fv.storageDriver, os.Getenv("VIDEOBOX_STORAGE_DRIVER"), postgresDSN)
	if err != nil {
		return nil, err
	}
	if mode == modeProduction {
		if err := validateProductionDatastore(driver, postgresDSN); err != nil {
			return nil, err
		}
	}

	switch driver {
	case "postgres":
		if postgresDSN == "" {
			return nil, errors.New("postgres storage selected without DSN")
		}
		if resolveBool(fv.postgresMigrate, "VIDEOBOX_POSTGRES_MIGRATE") {
			applied, err := storage.Migrate(ctx, postgresDSN)
			if err != nil {
				return nil, err
			}
			logger.Info("schema migrations applied", "count", len(applied))
		}
		pool := storage.PostgresPool{
			MaxConns:          int32(resolveInt(fv.postgresMaxConns, "VIDEOBOX_POSTGRES_MAX_CONNS")),
			MinConns:          int32(resolveInt(fv.postgresMinConns, "VIDEOBOX_POSTGRES_MIN_CONNS")),
			MaxConnLifetime:   resolveDuration(fv.postgresMaxLifetime, "VIDEOBOX_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime:   resolveDuration(fv.postgresMaxIdle, "VIDEOBOX_POSTGRES_MAX_CONN_IDLE", 0),
			HealthCheckPeriod: resolveDuration(fv.postgresHealthCheck, "VIDEOBOX_POSTGRES_HEALTH_CHECK_PERIOD", 0),
			AcquireTimeout:    resolveDuration(fv.postgresAcquire, "VIDEOBOX_POSTGRES_ACQUIRE_TIMEOUT", 0),
			ApplicationName:   firstNonEmpty(fv.postgresAppName, os.Getenv("VIDEOBOX_POSTGRES_APP_NAME")),
		}
		store, err := storage.NewPostgresRepository(postgresDSN, storage.WithPostgresPool(pool))
		if err != nil {
			return nil, fmt.Errorf("open postgres datastore: %w", err)
		}
		logger.Info("using postgres datastore")
		return store, nil
	default:
		path := resolveDataPath(fv.dataPath, os.Getenv("VIDEOBOX_DATA"))
		store, err := storage.NewJSONRepository(path)
		if err != nil {
			return nil, fmt.Errorf("open json datastore: %w", err)
		}
		logger.Info("using json datastore", "path", path)
		return store, nil
	}
}

func newReuseTracker(cfg redisConfig) (*auth.RedisReuseTracker, redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MasterName: cfg.MasterName,
		PoolSize:   cfg.PoolSize,
	})
	tracker, err := auth.NewRedisReuseTracker(auth.RedisReuseTrackerConfig{Client: client, Window: cfg.Window})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("configure reuse tracker: %w", err)
	}
	return tracker, client, nil
}

func passwordPolicyName(policy auth.PasswordChangePolicy) string {
	if policy == auth.PasswordChangeRevokeSessions {
		return "revoke"
	}
	return "keep"
}
