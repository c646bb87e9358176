package server

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	defaultFrameOptions          = "DENY"
	defaultReferrerPolicy        = "no-referrer"
	defaultContentTypeOptions    = "nosniff"
	defaultCacheControl          = "no-store"
	defaultHSTSMaxAge            = 180 * 24 * time.Hour
)

// SecurityConfig controls the hardening headers added to every response.
// Zero-valued fields fall back to defaults suited to a JSON API. HSTS is only
// sent on requests that arrived over TLS or through an HTTPS proxy.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	ContentTypeOptions    string
	CacheControl          string
	HSTSMaxAge            time.Duration
	DisableHSTS           bool
}

func (cfg SecurityConfig) withDefaults() SecurityConfig {
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = defaultContentSecurityPolicy
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = defaultFrameOptions
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = defaultReferrerPolicy
	}
	if cfg.ContentTypeOptions == "" {
		cfg.ContentTypeOptions = defaultContentTypeOptions
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = defaultCacheControl
	}
	if cfg.HSTSMaxAge <= 0 {
		cfg.HSTSMaxAge = defaultHSTSMaxAge
	}
	return cfg
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	effective := cfg.withDefaults()
	hsts := "max-age=" + strconv.FormatInt(int64(effective.HSTSMaxAge.Seconds()), 10) + "; includeSubDomains"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Content-Security-Policy", effective.ContentSecurityPolicy)
		header.Set("X-Frame-Options", effective.FrameOptions)
		header.Set("X-Content-Type-Options", effective.ContentTypeOptions)
		header.Set("Referrer-Policy", effective.ReferrerPolicy)
		header.Set("Cache-Control", effective.CacheControl)
		if !effective.DisableHSTS && requestIsHTTPS(r) {
			header.Set("Strict-Transport-Security", hsts)
		}

		next.ServeHTTP(w, r)
	})
}

func requestIsHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
