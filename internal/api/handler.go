package api

import (
	"context"
	"log/slog"
	"time"

	"videobox/internal/auth"
	"videobox/internal/observability/logging"
	"videobox/internal/storage"
)

const defaultMaxUploadBytes int64 = 5 << 20

// HealthProbe is an extra dependency reported by the health check.
type HealthProbe struct {
	Name  string
	Check func(context.Context) error
}

type Handler struct {
	Store               storage.Repository
	Sessions            *auth.SessionManager
	Objects             storage.ObjectStorage
	Logger              *slog.Logger
	SessionCookiePolicy SessionCookiePolicy
	// MaxUploadBytes caps a single image upload. Zero means 5 MiB.
	MaxUploadBytes int64
	Probes         []HealthProbe
	StartedAt      time.Time
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager, objects storage.ObjectStorage) *Handler {
	if objects == nil {
		objects = storage.DisabledObjectStorage()
	}
	return &Handler{
		Store:               store,
		Sessions:            sessions,
		Objects:             objects,
		Logger:              slog.Default(),
		SessionCookiePolicy: DefaultSessionCookiePolicy(),
		StartedAt:           time.Now(),
	}
}

func (h *Handler) logger(ctx context.Context) *slog.Logger {
	base := h.Logger
	if base == nil {
		base = slog.Default()
	}
	return logging.WithContext(ctx, base)
}

func (h *Handler) objectStorage() storage.ObjectStorage {
	if h.Objects == nil {
		return storage.DisabledObjectStorage()
	}
	return h.Objects
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}
