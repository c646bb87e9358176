package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"videobox/internal/api"
	"videobox/internal/observability/logging"
	"videobox/internal/observability/metrics"
	"videobox/internal/serverutil"
)

const (
	apiPrefix = "/api/v1"

	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

type Config struct {
	Addr      string
	TLS       serverutil.TLSConfig
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	CORS      CORSConfig
	Security  SecurityConfig

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	tls        serverutil.TLSConfig
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.New()
	}
	cors, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("configure cors: %w", err)
	}

	r := chi.NewRouter()
	r.Use(
		func(next http.Handler) http.Handler { return requestIDMiddleware(logger, next) },
		logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger}),
		func(next http.Handler) http.Handler { return metrics.HTTPMiddleware(recorder, next) },
		func(next http.Handler) http.Handler { return securityHeadersMiddleware(cfg.Security, next) },
		func(next http.Handler) http.Handler { return corsMiddleware(cors, logger, next) },
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMiddlewareError(w, http.StatusNotFound, "route not found")
	})
	r.Handle("/metrics", recorder.Handler())
	r.Mount(apiPrefix, handler.Router())

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: durationOr(cfg.ReadHeaderTimeout, defaultReadHeaderTimeout),
		ReadTimeout:       durationOr(cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      durationOr(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       durationOr(cfg.IdleTimeout, defaultIdleTimeout),
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	tlsCfg := serverutil.TLSConfig{
		CertFile: strings.TrimSpace(cfg.TLS.CertFile),
		KeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
		tls:        tlsCfg,
	}, nil
}

// Handler exposes the composed router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled and then shuts down gracefully. When ready
// is non-nil it receives the bound address.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration, ready chan<- net.Addr) error {
	bound := make(chan net.Addr, 1)
	go func() {
		select {
		case addr := <-bound:
			s.logger.Info("http server listening", "addr", addr.String(), "tls", s.tls.Enabled())
			if ready != nil {
				select {
				case ready <- addr:
				default:
				}
			}
		case <-ctx.Done():
		}
	}()
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		TLS:             s.tls,
		ShutdownTimeout: shutdownTimeout,
		Ready:           bound,
		Logger:          s.logger,
	})
}
