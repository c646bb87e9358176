package api

import (
	"errors"
	"net/http"

	"videobox/internal/auth"
	"videobox/internal/storage"
)

// RequestError is a client error raised by the handlers themselves, such as a
// malformed body or a missing upload.
type RequestError struct {
	Status  int
	Message string
}

func (e RequestError) Error() string {
	return e.Message
}

func badRequest(message string) error {
	return RequestError{Status: http.StatusBadRequest, Message: message}
}

const (
	messageInvalidCredentials = "invalid credentials"
	messageUnauthorized       = "unauthorized"
	messageInternal           = "Internal Server Error"
)

// respondError classifies err into a status code and writes the error
// envelope. Credential and token failures never carry detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  RequestError
		invalid *storage.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, reqErr.Status, reqErr.Message)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, messageInvalidCredentials)
	case auth.IsUnauthorized(err):
		writeError(w, http.StatusUnauthorized, messageUnauthorized)
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "invalid input", invalid.Problems...)
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, storage.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrObjectStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, "image uploads are not configured")
	default:
		h.logger(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, messageInternal)
	}
}
