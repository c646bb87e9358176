package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respond(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, envelope{StatusCode: status, Data: data, Message: message, Success: status < http.StatusBadRequest})
}

func writeError(w http.ResponseWriter, status int, message string, problems ...string) {
	writeJSON(w, status, errorEnvelope{StatusCode: status, Message: message, Success: false, Errors: problems})
}

// WriteError is an exported helper for returning enveloped API errors from
// middleware outside this package.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message)
}

// decodeJSON rejects unknown fields. An empty body decodes to the zero value
// when allowEmpty is set.
func decodeJSON(r *http.Request, dest interface{}, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return badRequest("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return badRequest("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
