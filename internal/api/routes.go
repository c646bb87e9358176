package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router returns the versioned API routes, meant to be mounted at /api/v1.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthcheck", h.Healthcheck)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.RefreshToken)
		r.With(h.OptionalUser).Get("/channel/{username}", h.ChannelProfile)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireUser)
			r.Post("/logout", h.Logout)
			r.Patch("/change-password", h.ChangePassword)
			r.Get("/current-user", h.CurrentUser)
			r.Patch("/update-account", h.UpdateAccount)
			r.Patch("/avatar", h.UpdateAvatar)
			r.Patch("/cover-image", h.UpdateCoverImage)
		})
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(h.RequireUser)
		r.Get("/", h.ListSubscriptions)
		r.Get("/my-subscribers", h.ListSubscribers)
		r.Post("/subscribe/{channelId}", h.Subscribe)
		r.Delete("/unsubscribe/{channelId}", h.Unsubscribe)
	})
	return r
}
