package api

import (
	"net/http"

	"videobox/internal/storage"
)

type updateAccountRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, user, "current user fetched successfully")
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	updated, err := h.Store.UpdateAccount(r.Context(), user.ID, storage.AccountUpdate{FullName: req.FullName, Email: req.Email})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, updated.Public(), "account details updated successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, storage.ImageAvatar, "avatar", "avatars")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, storage.ImageCover, "coverImage", "covers")
}

// replaceImage uploads the new file, records its URL and then removes the
// object it replaced.
func (h *Handler) replaceImage(w http.ResponseWriter, r *http.Request, field storage.ImageField, formField, folder string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if !h.objectStorage().Enabled() {
		h.respondError(w, r, storage.ErrObjectStorageDisabled)
		return
	}
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, "multipart form with "+formField+" file is required")
		return
	}
	if err := h.parseMultipart(w, r, 1); err != nil {
		h.respondError(w, r, err)
		return
	}
	img, err := h.readImage(r, formField)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if img == nil {
		writeError(w, http.StatusBadRequest, formField+" file is missing")
		return
	}

	ref, err := h.storeImage(r.Context(), folder, img)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	updated, previous, err := h.Store.SetUserImage(r.Context(), user.ID, field, ref.URL)
	if err != nil {
		h.discardImage(r.Context(), ref.URL)
		h.respondError(w, r, err)
		return
	}
	h.discardImage(r.Context(), previous)
	respond(w, http.StatusOK, updated.Public(), field.String()+" updated successfully")
}
