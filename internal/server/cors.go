package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	corsAllowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsDefaultHeaders = "Content-Type, Authorization"
	corsExposedHeaders = "X-Request-Id"
	defaultCORSMaxAge  = 10 * time.Minute
)

// CORSConfig declares the browser origins allowed to call the API with
// credentials. An entry may use a leading wildcard label such as
// "https://*.example.com" to admit every subdomain. With no entries only
// same-origin requests pass.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

type corsPolicy struct {
	exact    map[string]struct{}
	suffixes []originSuffix
	maxAge   string
}

type originSuffix struct {
	scheme string
	suffix string
}

func newCORSPolicy(cfg CORSConfig) (corsPolicy, error) {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}
	policy := corsPolicy{
		exact:  make(map[string]struct{}),
		maxAge: strconv.Itoa(int(maxAge.Seconds())),
	}
	for _, raw := range cfg.AllowedOrigins {
		origin := strings.TrimSpace(raw)
		if origin == "" {
			continue
		}
		if scheme, host, ok := strings.Cut(origin, "://*."); ok {
			if scheme == "" || host == "" || strings.ContainsAny(host, "/*") {
				return corsPolicy{}, fmt.Errorf("parse origin %q: malformed wildcard", raw)
			}
			policy.suffixes = append(policy.suffixes, originSuffix{
				scheme: strings.ToLower(scheme),
				suffix: "." + strings.ToLower(host),
			})
			continue
		}
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return corsPolicy{}, fmt.Errorf("parse origin %q: %w", raw, err)
		}
		policy.exact[normalized] = struct{}{}
	}
	return policy, nil
}

func normalizeOrigin(origin string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}

// allows reports whether origin is configured or matches the host serving r.
func (p corsPolicy) allows(origin string, r *http.Request) bool {
	normalized, err := normalizeOrigin(origin)
	if err != nil {
		return false
	}
	if _, ok := p.exact[normalized]; ok {
		return true
	}
	scheme, host, _ := strings.Cut(normalized, "://")
	for _, candidate := range p.suffixes {
		if candidate.scheme == scheme && strings.HasSuffix(host, candidate.suffix) {
			return true
		}
	}
	return normalized == sameOrigin(r)
}

func sameOrigin(r *http.Request) string {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		return ""
	}
	scheme := "http"
	if requestIsHTTPS(r) {
		scheme = "https"
	}
	return scheme + "://" + host
}

func corsMiddleware(policy corsPolicy, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !policy.allows(origin, r) {
			if requestLogger := loggerWithRequestContext(r.Context(), logger); requestLogger != nil {
				requestLogger.Warn("blocked CORS origin", "origin", origin, "path", r.URL.Path)
			}
			writeMiddlewareError(w, http.StatusForbidden, "origin not allowed")
			return
		}

		header := w.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Add("Vary", "Origin")
		header.Set("Access-Control-Expose-Headers", corsExposedHeaders)

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		header.Set("Access-Control-Allow-Methods", corsAllowedMethods)
		header.Set("Access-Control-Max-Age", policy.maxAge)
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			header.Set("Access-Control-Allow-Headers", requested)
		} else {
			header.Set("Access-Control-Allow-Headers", corsDefaultHeaders)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
