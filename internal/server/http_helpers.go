package server

import (
	"net/http"

	"videobox/internal/api"
)

// writeMiddlewareError normalises middleware error responses to the API envelope.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, status, message)
}
