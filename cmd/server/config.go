package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"videobox/internal/api"
)

const (
	modeDevelopment = "development"
	modeProduction  = "production"

	minSecretLength = 32
)

// flagValues mirrors the command line; zero values defer to the environment.
type flagValues struct {
	addr                string
	mode                string
	logLevel            string
	logFormat           string
	tlsCert             string
	tlsKey              string
	storageDriver       string
	dataPath            string
	postgresDSN         string
	postgresMaxConns    int
	postgresMinConns    int
	postgresAcquire     time.Duration
	postgresMaxLifetime time.Duration
	postgresMaxIdle     time.Duration
	postgresHealthCheck time.Duration
	postgresAppName     string
	postgresMigrate     bool
	accessSecret        string
	refreshSecret       string
	accessTTL           time.Duration
	refreshTTL          time.Duration
	tokenIssuer         string
	passwordPolicy      string
	cookieSameSite      string
	cookieDomain        string
	allowedOrigins      string
	redisAddrs          string
	redisUsername       string
	redisPassword       string
	redisMasterName     string
	redisPoolSize       int
	reuseWindow         time.Duration
	objectEndpoint      string
	objectRegion        string
	objectAccessKey     string
	objectSecretKey     string
	objectBucket        string
	objectPrefix        string
	objectPublicURL     string
	objectPathStyle     bool
	shutdownTimeout     time.Duration
	probeInterval       time.Duration
	maxUploadMegabytes  int
}

type secretsConfig struct {
	Access    []byte
	Refresh   []byte
	Generated bool
}

type redisConfig struct {
	Addrs      []string
	Username   string
	Password   string
	MasterName string
	PoolSize   int
	Window     time.Duration
}

func (c redisConfig) enabled() bool {
	return len(c.Addrs) > 0
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = modeDevelopment
	}
	return mode
}

func validateMode(mode string) error {
	switch mode {
	case modeDevelopment, modeProduction:
		return nil
	default:
		return fmt.Errorf("unsupported mode %q (expected development or production)", mode)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	if addr := firstNonEmpty(flagValue, envAddr); addr != "" {
		return addr
	}
	if mode == modeProduction {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(firstNonEmpty(flagValue, envValue)); driver != "" {
		switch driver {
		case "json", "postgres":
			return driver, nil
		default:
			return "", fmt.Errorf("unsupported storage driver %q", driver)
		}
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, postgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(postgresDSN) == "" {
		return errors.New("production mode requires VIDEOBOX_POSTGRES_DSN to be set")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if path := firstNonEmpty(flagValue, envValue); path != "" {
		return path
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv("VIDEOBOX_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
}

// resolveSecrets returns the token signing secrets. Production refuses to
// start without explicit, distinct, long-enough secrets; development mints
// random ones so a fresh checkout runs without setup.
func resolveSecrets(mode, access, refresh string) (secretsConfig, error) {
	access = strings.TrimSpace(access)
	refresh = strings.TrimSpace(refresh)

	if access == "" || refresh == "" {
		if mode == modeProduction {
			return secretsConfig{}, errors.New("production mode requires VIDEOBOX_ACCESS_TOKEN_SECRET and VIDEOBOX_REFRESH_TOKEN_SECRET")
		}
		generated := secretsConfig{Generated: true}
		var err error
		if generated.Access, err = randomSecret(access); err != nil {
			return secretsConfig{}, err
		}
		if generated.Refresh, err = randomSecret(refresh); err != nil {
			return secretsConfig{}, err
		}
		return generated, nil
	}

	if access == refresh {
		return secretsConfig{}, errors.New("access and refresh token secrets must differ")
	}
	if mode == modeProduction && (len(access) < minSecretLength || len(refresh) < minSecretLength) {
		return secretsConfig{}, fmt.Errorf("token secrets must be at least %d characters in production", minSecretLength)
	}
	return secretsConfig{Access: []byte(access), Refresh: []byte(refresh)}, nil
}

func randomSecret(existing string) ([]byte, error) {
	if existing != "" {
		return []byte(existing), nil
	}
	var buffer [minSecretLength]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return []byte(hex.EncodeToString(buffer[:])), nil
}

func resolveSessionCookieSecureMode(mode string) api.SessionCookieSecureMode {
	if strings.EqualFold(strings.TrimSpace(mode), modeProduction) {
		return api.SessionCookieSecureAlways
	}
	return api.SessionCookieSecureAuto
}

func resolveSessionCookiePolicy(mode, sameSite string) (api.SessionCookiePolicy, error) {
	policy := api.DefaultSessionCookiePolicy()
	policy.SecureMode = resolveSessionCookieSecureMode(mode)
	switch strings.ToLower(strings.TrimSpace(sameSite)) {
	case "", "lax":
	case "strict":
		policy.SameSite = http.SameSiteStrictMode
	case "none":
		policy.SameSite = http.SameSiteNoneMode
		policy.SecureMode = api.SessionCookieSecureAlways
	default:
		return api.SessionCookiePolicy{}, fmt.Errorf("unsupported cookie samesite %q", sameSite)
	}
	return policy, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
