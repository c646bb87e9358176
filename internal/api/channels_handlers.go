package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ChannelProfile is served behind OptionalUser; isSubscribed is only
// personalised for an identified viewer.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var viewerID string
	if viewer, ok := UserFromContext(r.Context()); ok {
		viewerID = viewer.ID
	}
	profile, err := h.Store.GetChannelProfile(r.Context(), username, viewerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, profile, "channel fetched successfully")
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	sub, err := h.Store.Subscribe(r.Context(), user.ID, chi.URLParam(r, "channelId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, sub, "subscribed successfully")
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Store.Unsubscribe(r.Context(), user.ID, chi.URLParam(r, "channelId")); err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil, "unsubscribed successfully")
}

// ListSubscriptions returns the channels the caller follows.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	entries, err := h.Store.ListSubscriptions(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, entries, "subscriptions fetched successfully")
}

// ListSubscribers returns the users following the caller's channel.
func (h *Handler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	entries, err := h.Store.ListSubscribers(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, entries, "subscribers fetched successfully")
}
